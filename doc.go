// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

// Package vncdriver drives a remote machine through its display for
// automated testing, when the only access is a VNC server (RFC 6143).
//
// It has two pipelines sharing one connection. The keyboard pipeline maps
// text to keysyms with the Shift or Control modifier each character needs,
// and sends the resulting key events at a fixed pace so the remote input
// queue is never overrun. The screen pipeline requests the framebuffer,
// collects rectangle updates until the peer goes idle and stitches them
// into a Frame, optionally alpha-blending them onto the previous frame so
// incremental updates still yield a complete image.
//
// # Basic Usage
//
//	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
//	defer cancel()
//
//	session, err := vncdriver.Dial(ctx, "localhost:5900",
//		vncdriver.WithClientOptions(vncdriver.WithAuth(vncdriver.NewPasswordAuth("secret"))),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer session.Close()
//
//	if err := session.Type(ctx, "root\n"); err != nil {
//		log.Fatal(err)
//	}
//
//	frame, err := session.Screenshot(ctx, vncdriver.CaptureComposite)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := frame.SavePNG("screen.png"); err != nil {
//		log.Fatal(err)
//	}
//
// # Connections
//
// Typing and capture talk to a Conn. ClientConn implements it over RFB;
// anything exposing the same four operations can stand in for it, which is
// how the package is tested.
//
// # Timing
//
// A capture ends once no event arrived for the idle timeout. The timer
// restarts with every event, so a peer that keeps sending updates keeps the
// capture open; use a context deadline to bound it.
//
// # Error Handling
//
//	if vncdriver.IsVNCError(err, vncdriver.ErrUnsupportedCharacter) {
//		var charErr *vncdriver.CharacterError
//		if errors.As(err, &charErr) {
//			log.Printf("cannot type %q", charErr.Char)
//		}
//	}
package vncdriver
