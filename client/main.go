// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/SergeyPalam/streaming-quotes/logging"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	myApp := cli.NewApp()
	myApp.Name = "quotes-client"
	myApp.Usage = "streaming market-data client"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:     "server",
			Usage:    "server stream address, eg: \"IP:port\"",
			Required: true,
		},
		cli.IntFlag{
			Name:     "port",
			Usage:    "local UDP port to receive quotes on",
			Required: true,
		},
		cli.StringFlag{
			Name:     "tickers-path",
			Usage:    "path to the plain-text file of tickers to subscribe to, one per line",
			Required: true,
		},
		cli.StringFlag{
			Name:  "ping-host",
			Value: "127.0.0.1",
			Usage: "host interface the PING worker binds its own UDP socket on (port is always OS-assigned)",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "client",
			Usage: "basename under logs/ for this process's log file",
		},
		cli.StringFlag{
			Name:  "app-config",
			Value: "",
			Usage: "config from json file, which will override the command line flags",
		},
	}
	myApp.Action = run

	if err := myApp.Run(os.Args); err != nil {
		color.Red("%+v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	config := Config{
		Server:      c.String("server"),
		Port:        c.Int("port"),
		TickersPath: c.String("tickers-path"),
		PingHost:    c.String("ping-host"),
		Log:         c.String("log"),
	}
	if path := c.String("app-config"); path != "" {
		if err := parseJSONConfig(&config, path); err != nil {
			return err
		}
	}
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("invalid port: %d", config.Port)
	}

	log, err := logging.New(config.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Sugar().Infow("starting client",
		"server", config.Server,
		"port", config.Port,
		"tickers-path", config.TickersPath,
	)

	client, err := New(config.TickersPath, config.Server, config.PingHost, log)
	if err != nil {
		return err
	}

	receiver, err := client.StartReceiveQuotes(uint16(config.Port))
	if err != nil {
		return err
	}

	runDone := make(chan error, 1)
	go func() {
		runDone <- receiver.Run()
	}()

	fmt.Println(`To stop client type "exit"`)
	scanner := bufio.NewScanner(os.Stdin)
	go func() {
		for scanner.Scan() {
			if strings.EqualFold(strings.TrimSpace(scanner.Text()), "exit") {
				receiver.CmdChan() <- ReceiverCmdStop
				return
			}
		}
	}()

	return <-runDone
}
