package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/tagqa/shield"
	"github.com/hazyhaar/tagqa/tagcheck"
	"github.com/hazyhaar/tagqa/tagcheck/report"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var addr string
		svc, err := openService(ctx, func(c *tagcheck.Config) {
			if serveAddr != "" {
				c.HTTP.Addr = serveAddr
			}
			addr = c.HTTP.Addr
		})
		if err != nil {
			return err
		}
		defer svc.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Recoverer)
		for _, mw := range shield.APIStack() {
			r.Use(mw)
		}
		svc.RegisterHTTP(r)

		srv := &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		errc := make(chan error, 1)
		go func() {
			logger.Info("tagqa: server starting", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
			close(errc)
		}()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		logger.Info("tagqa: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var examineReq tagcheck.ExaminationRequest

var examineCmd = &cobra.Command{
	Use:   "examine",
	Short: "Examine every spec record of a table and write the verdicts back",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		exam, err := svc.RunExamination(cmd.Context(), examineReq)
		if exam != nil {
			data, merr := report.MarshalExamination(exam)
			if merr != nil {
				return merr
			}
			printLine(data)
		}
		return err
	},
}

var monitorReq tagcheck.MonitorRequest

var monitorCmd = &cobra.Command{
	Use:   "monitor <preview-url>",
	Short: "Watch a Tag Manager preview for unexpected measurement ids",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		req := monitorReq
		req.PreviewURL = args[0]
		rep, err := svc.RunMonitor(cmd.Context(), req)
		if rep != nil {
			data, merr := report.MarshalMonitor(rep)
			if merr != nil {
				return merr
			}
			printLine(data)
			if rep.AnomalyCount > 0 && err == nil {
				return fmt.Errorf("%d anomalies in %d iterations", rep.AnomalyCount, len(rep.Entries))
			}
		}
		return err
	},
}

var containersCmd = &cobra.Command{
	Use:   "containers <url>",
	Short: "List the Tag Manager containers and gtag ids a page loads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer svc.Close()

		ids, err := svc.Containers(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := json.Marshal(map[string]any{"url": args[0], "containers": ids})
		if err != nil {
			return err
		}
		printLine(data)
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the tagqa tools over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol: no stdout sink.
		svc, err := openService(cmd.Context(), func(c *tagcheck.Config) {
			sinks := c.Sinks[:0]
			for _, s := range c.Sinks {
				if s.Type != "stdout" {
					sinks = append(sinks, s)
				}
			}
			c.Sinks = sinks
		})
		if err != nil {
			return err
		}
		defer svc.Close()

		srv := mcp.NewServer(&mcp.Implementation{Name: "tagqa", Version: "0.1.0"}, nil)
		svc.RegisterMCP(srv)
		return srv.Run(cmd.Context(), &mcp.StdioTransport{})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http.addr)")

	f := examineCmd.Flags()
	f.StringVar(&examineReq.BaseID, "base", "", "Airtable base id")
	f.StringVar(&examineReq.TableID, "table", "", "table id or name")
	f.StringVar(&examineReq.View, "view", "", "view restricting the records")
	f.StringVar(&examineReq.Formula, "formula", "", "filterByFormula expression")
	f.StringVar(&examineReq.ResultField, "result-field", "", "checkbox field receiving the verdicts")
	f.BoolVar(&examineReq.DryRun, "dry-run", false, "examine without writing verdicts")

	f = monitorCmd.Flags()
	f.StringVar(&monitorReq.Expected, "expected", "", "expected measurement id")
	f.IntVar(&monitorReq.Loops, "loops", 0, "iterations (default from config)")
	f.StringVar(&monitorReq.Policy, "policy", "", "session policy after a match: reopen or keep")
	f.Int64Var(&monitorReq.IntervalMS, "interval-ms", 0, "pause between iterations")
	monitorCmd.MarkFlagRequired("expected")
}

func printLine(data []byte) {
	os.Stdout.Write(data)
	os.Stdout.Write([]byte("\n"))
}
