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

// Command objectstore-client is a thin demonstration client for
// objectstore-server: it issues one request per invocation and prints the
// reply. It is not part of the core server and intentionally depends on
// nothing beyond the standard library (spec.md §4.L), mirroring
// original_source/src/client.c's register/store/retrieve/delete/leave
// test harness one verb at a time instead of the original's canned test
// sequences.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
)

func main() {
	socket := flag.String("socket", "./objstore.sock", "path of the server's UNIX domain socket")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	conn, err := net.Dial("unix", *socket)
	if err != nil {
		fatal(err)
	}
	defer conn.Close()

	if err := dispatch(conn, args); err != nil {
		fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: objectstore-client [-socket path] <command> [args]

commands:
  register <name>
  store <name> <file>
  retrieve <name> <outfile>
  delete <name>
  leave
`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func dispatch(conn net.Conn, args []string) error {
	switch args[0] {
	case "register":
		if len(args) != 2 {
			return fmt.Errorf("register requires <name>")
		}
		return doRegister(conn, args[1])
	case "store":
		if len(args) != 3 {
			return fmt.Errorf("store requires <name> <file>")
		}
		return doStore(conn, args[1], args[2])
	case "retrieve":
		if len(args) != 3 {
			return fmt.Errorf("retrieve requires <name> <outfile>")
		}
		return doRetrieve(conn, args[1], args[2])
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("delete requires <name>")
		}
		return doDelete(conn, args[1])
	case "leave":
		return doLeave(conn)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func doRegister(conn net.Conn, name string) error {
	if _, err := fmt.Fprintf(conn, "REGISTER %s \n", name); err != nil {
		return err
	}
	return expectOK(conn)
}

func doStore(conn net.Conn, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(conn, "STORE %s %d \n", name, len(data)); err != nil {
		return err
	}
	if _, err := conn.Write(data); err != nil {
		return err
	}
	return expectOK(conn)
}

func doRetrieve(conn net.Conn, name, outPath string) error {
	if _, err := fmt.Fprintf(conn, "RETRIEVE %s \n", name); err != nil {
		return err
	}
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("empty reply")
	}
	switch fields[0] {
	case "KO":
		return koError(fields)
	case "DATA":
		if len(fields) < 2 {
			return fmt.Errorf("malformed DATA reply: %q", line)
		}
		length, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("malformed DATA length: %w", err)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		if err := os.WriteFile(outPath, buf, 0o644); err != nil {
			return err
		}
		fmt.Printf("retrieved %d byte(s) into %s\n", length, outPath)
		return nil
	default:
		return fmt.Errorf("unexpected reply: %q", line)
	}
}

func doDelete(conn net.Conn, name string) error {
	if _, err := fmt.Fprintf(conn, "DELETE %s \n", name); err != nil {
		return err
	}
	return expectOK(conn)
}

func doLeave(conn net.Conn) error {
	_, err := fmt.Fprintf(conn, "LEAVE \n")
	return err
}

func expectOK(conn net.Conn) error {
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("empty reply")
	}
	if fields[0] == "KO" {
		return koError(fields)
	}
	if fields[0] != "OK" {
		return fmt.Errorf("unexpected reply: %q", line)
	}
	fmt.Println("OK")
	return nil
}

func koError(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("malformed KO reply")
	}
	return fmt.Errorf("server returned error code %s", fields[1])
}
