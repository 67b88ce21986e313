package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/bazelment/agentconsole/internal/mockagent"
)

var (
	mockAddr    string
	mockScripts string
)

var serveMockCmd = &cobra.Command{
	Use:   "serve-mock",
	Short: "Serve scripted agent streams for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		var scripts []mockagent.Script
		if mockScripts != "" {
			loaded, err := mockagent.LoadScripts(mockScripts)
			if err != nil {
				return err
			}
			scripts = loaded
		}

		agent := mockagent.New(log, scripts...)
		srv := &http.Server{
			Addr:              mockAddr,
			Handler:           agent.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		log.Info("mock agent listening", "addr", mockAddr,
			"stream", mockagent.StreamPath, "approvals", mockagent.ApprovalPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveMockCmd)
	serveMockCmd.Flags().StringVar(&mockAddr, "addr", "127.0.0.1:8787", "Listen address")
	serveMockCmd.Flags().StringVar(&mockScripts, "scripts", "", "YAML script file (default: built-in demo script)")
}
