// The MIT License (MIT)
//
// Copyright (c) 2019 karjudev
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"os"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/karjudev/objectstore/internal/objstore"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "objectstore-server"
	myApp.Usage = "multi-client object store server over a UNIX domain socket"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "socket",
			Value: "./objstore.sock",
			Usage: "path of the UNIX domain socket to listen on",
		},
		cli.StringFlag{
			Name:  "data-dir",
			Value: "./data",
			Usage: "root directory for per-user object storage",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "panic, fatal, error, warn, info, or debug",
		},
		cli.StringFlag{
			Name:  "log-file",
			Value: "",
			Usage: "file to write logs to, default goes to stderr",
		},
		cli.StringFlag{
			Name:  "config, c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = run
	if err := myApp.Run(os.Args); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	config := Config{}
	config.Socket = c.String("socket")
	config.DataDir = c.String("data-dir")
	config.LogLevel = c.String("log-level")
	config.LogFile = c.String("log-file")

	if c.String("config") != "" {
		if err := parseJSONConfig(&config, c.String("config")); err != nil {
			return err
		}
	}

	out := os.Stderr
	if config.LogFile != "" {
		f, err := os.OpenFile(config.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		defer f.Close()
		return serve(config, f)
	}
	return serve(config, out)
}

func serve(config Config, out *os.File) error {
	log, err := objstore.NewLogger(out, config.LogLevel)
	if err != nil {
		return err
	}

	sessions := objstore.NewSessionMap()
	worker, err := objstore.NewWorker(config.DataDir, sessions)
	if err != nil {
		return err
	}
	ln, err := objstore.Listen(config.Socket)
	if err != nil {
		return err
	}

	var shutdown atomic.Bool
	lifecycle := objstore.NewLifecycle(worker, log, &shutdown)
	server := objstore.NewServer(ln, worker, sessions, log, &shutdown)

	color.Green("objectstore-server listening on %s, storing objects under %s", config.Socket, config.DataDir)
	lifecycle.Start()

	err = server.Run()
	lifecycle.Stop()
	if closeErr := server.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	color.Green("objectstore-server shut down cleanly")
	return nil
}
