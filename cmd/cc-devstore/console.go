// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-devstore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/chzyer/readline"
	"github.com/go-zeromq/zmq4"
)

// runConsole is an interactive debugger client over a ZMQ REQ socket,
// for poking at a running daemon without a GUI:
//
//	cc-devstore> r/meas/temperature
//	4035000000000000
//	cc-devstore> a0/ctrl/setpoint
//	!
func runConsole(addr string) {
	sock := zmq4.NewReq(context.Background(), zmq4.WithDialerRetry(time.Second))
	if err := sock.Dial(addr); err != nil {
		cclog.Abortf("Console: could not connect to '%s'.\nError: %s\n", addr, err.Error())
	}
	defer sock.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "cc-devstore> ",
		HistoryFile:     os.TempDir() + "/cc-devstore_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		cclog.Abortf("Console: could not initialize readline.\nError: %s\n", err.Error())
	}
	defer rl.Close()

	fmt.Printf("connected to %s; type debugger commands, 'help' or 'exit'\n", addr)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		switch line {
		case "":
			continue
		case "exit", "quit":
			return
		case "help":
			printConsoleHelp()
			continue
		}

		if err := sock.Send(zmq4.NewMsgString(line)); err != nil {
			cclog.Errorf("console: send: %v", err)
			continue
		}
		reply, err := sock.Recv()
		if err != nil {
			cclog.Errorf("console: recv: %v", err)
			continue
		}
		printReply(reply.Bytes())
	}
}

func printReply(p []byte) {
	printable := true
	for _, b := range p {
		if (b < 0x20 || b > 0x7e) && b != '\n' && b != '\t' {
			printable = false
			break
		}
	}
	if printable {
		fmt.Printf("%s\n", p)
	} else {
		fmt.Printf("(%d bytes) %x\n", len(p), p)
	}
}

func printConsoleHelp() {
	fmt.Print(`requests are sent verbatim; common commands:
  ?            capabilities
  e<data>      echo
  l            list objects
  r<name>      read object (abbreviations allowed)
  w<hex><name> write object
  a<char><name>  define alias, a<char> removes it
  m<char><sep><cmd>...  define macro
  i            identification
  v            version
  s            list streams, s<char> drains one
`)
}
