/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

/*
Package lsp provides a framing and interception proxy for the Content-Length
header-prefixed JSON-RPC protocol used by language servers.

# Architecture Overview

The proxy sits between an editor (the client, talking over the proxy's stdin and
stdout) and a language server subprocess. Each direction has its own Decoder,
so the two byte streams never share buffering state:

	client stdin  -> Decoder -> Pipeline(Upstream)   -> Encode -> server stdin
	server stdout -> Decoder -> Pipeline(Downstream) -> Encode -> client stdout

# Key Components

  - Decoder: incremental de-framer that turns arbitrarily split chunks into Messages
  - Encode / FrameWriter: re-frames a Message as Content-Length header plus body
  - Pipeline: ordered list of named Rules, each yielding Forward, Replace or Drop
  - Proxy: runs both directions concurrently and forwards in arrival order
  - Session: launches the server, runs the Proxy and propagates the server exit code

# Wire Format

	Content-Length: <n>\r\n
	[Other-Header: value\r\n]*
	\r\n
	<n bytes of UTF-8 JSON>

Malformed headers and bodies are reported as FramingError and PayloadDecodeError
and never stop the stream; sink and subprocess failures are fatal.
*/
package lsp
