package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/w1xm/mount_interface/catalog"
	"github.com/w1xm/mount_interface/mount"
)

// Console reply codes, following hamlib's RPRT convention.
const (
	rprtOK      = 0
	rprtUnknown = -1
	rprtTimeout = -5
	rprtIO      = -6
	rprtInvalid = -22
)

func (s *Server) ListenConsole(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("console listening on %v", ln.Addr())
	go func() {
		<-ctx.Done()
		log.Print("shutdown; closing console socket")
		ln.Close()
	}()
	go func() {
		for ctx.Err() == nil {
			conn, err := ln.Accept()
			if err != nil {
				log.Printf("failed to accept: %v", err)
				continue
			}
			go s.handleConsole(ctx, conn)
		}
	}()
	return nil
}

func (s *Server) handleConsole(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log.Printf("accepted connection from %v", conn.RemoteAddr())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		cmd, args := args[0], args[1:]
		log.Printf("%v command: %q args: %#v", conn.RemoteAddr(), cmd, args)
		rprt := s.consoleCommand(ctx, conn, cmd, args)
		fmt.Fprintf(conn, "RPRT %d\n", rprt)
	}
	if err := scanner.Err(); err != nil {
		log.Printf("reading from %v: %v", conn.RemoteAddr(), err)
	}
}

func rprtFor(err error) int {
	switch {
	case err == nil:
		return rprtOK
	case errors.Is(err, mount.ErrNoResponse):
		return rprtTimeout
	}
	return rprtIO
}

// parseAngle accepts sexagesimal or decimal notation.
func parseAngle(arg string, sexagesimal func(string) (float64, error)) (float64, error) {
	if v, err := sexagesimal(arg); err == nil {
		return v, nil
	}
	return strconv.ParseFloat(arg, 64)
}

func (s *Server) consoleCommand(ctx context.Context, conn net.Conn, cmd string, args []string) int {
	var err error
	switch cmd {
	case "slew":
		if len(args) != 2 {
			return rprtInvalid
		}
		ra, raErr := parseAngle(args[0], catalog.ParseHours)
		dec, decErr := parseAngle(args[1], catalog.ParseDegrees)
		if raErr != nil || decErr != nil || ra < 0 || ra >= 24 || dec < -90 || dec > 90 {
			return rprtInvalid
		}
		err = s.m.Slew(ctx, ra, dec)
	case "park":
		err = s.m.Park(ctx)
	case "unpark":
		err = s.m.Unpark(ctx)
	case "stop":
		err = s.m.Stop(ctx)
	case "flip":
		err = s.m.Flip(ctx)
	case "correction":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return rprtInvalid
		}
		s.m.Correction.SetEnabled(args[0] == "on")
	case "correction_sample":
		if len(args) != 4 {
			return rprtInvalid
		}
		ra, raErr := parseAngle(args[0], catalog.ParseHours)
		dec, decErr := parseAngle(args[1], catalog.ParseDegrees)
		dRA, dRAErr := strconv.ParseFloat(args[2], 64)
		dDec, dDecErr := strconv.ParseFloat(args[3], 64)
		if raErr != nil || decErr != nil || dRAErr != nil || dDecErr != nil {
			return rprtInvalid
		}
		s.m.Correction.Add(ra, dec, dRA, dDec, time.Now())
	case "slew_rate":
		if len(args) != 1 {
			return rprtInvalid
		}
		rate, convErr := strconv.Atoi(args[0])
		if convErr != nil {
			return rprtInvalid
		}
		err = s.m.SetSlewRate(ctx, rate)
	case "meridian_limit":
		var degrees int
		if degrees, err = s.m.MeridianLimit(ctx); err == nil {
			fmt.Fprintf(conn, "%d\n", degrees)
		}
	case "status":
		st := s.Status()
		fmt.Fprintf(conn, "Status: %s\nCode: %d\n", st.Status, st.Code)
		fmt.Fprintf(conn, "RA: %s\nDec: %s\n", catalog.FormatHours(st.TelescopeRA), catalog.FormatDegrees(st.TelescopeDec))
		fmt.Fprintf(conn, "Target RA: %s\nTarget Dec: %s\n", catalog.FormatHours(st.TargetRA), catalog.FormatDegrees(st.TargetDec))
		fmt.Fprintf(conn, "Dome: %.1f\nShutter: %d\nMinutes to limit: %d\n", st.DomeAzimuth, st.Shutter, st.TrackingMinutes)
		if w := st.Warning; w.Text != "" && !w.Read {
			fmt.Fprintf(conn, "Warning: %s\n", w.Text)
		}
		if i := st.Information; i.Text != "" && !i.Read {
			fmt.Fprintf(conn, "Information: %s\n", i.Text)
		}
	case "raw":
		if len(args) != 1 {
			return rprtInvalid
		}
		var reply string
		reply, err = s.m.Send(ctx, args[0])
		if err == nil {
			fmt.Fprintf(conn, "%s\n", reply)
		}
	default:
		return rprtUnknown
	}
	if err != nil {
		log.Printf("%v %s: %v", conn.RemoteAddr(), cmd, err)
	}
	return rprtFor(err)
}
