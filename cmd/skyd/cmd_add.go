package main

import (
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/user/skyd/internal/client"
	"github.com/user/skyd/internal/protocol"
	"github.com/user/skyd/internal/status"
	"github.com/user/skyd/internal/types"
)

func init() {
	rootCmd.AddCommand(addCmd)

	f := addCmd.Flags()
	f.String("addr", "", "server address (default: host and port from config)")
	f.String("database", "", "database name (required)")
	f.String("table", "", "table name (required)")
	f.Int64("object-id", 0, "object id (required)")
	f.String("action", "", "action name")
	f.String("time", "", "event time as RFC 3339 (default: now)")
	f.Int64("timestamp", 0, "event timestamp in shifted format; overrides --time")
	f.StringArray("data", nil, "data pair as key=value; repeatable")
	f.Int("retries", client.DefaultRetryPolicy().MaxAttempts, "connection attempts before giving up")
	f.Duration("timeout", 30*time.Second, "request timeout")
	_ = addCmd.MarkFlagRequired("database")
	_ = addCmd.MarkFlagRequired("table")
	_ = addCmd.MarkFlagRequired("object-id")
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Send an event to a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		addr, _ := f.GetString("addr")
		database, _ := f.GetString("database")
		table, _ := f.GetString("table")
		objectID, _ := f.GetInt64("object-id")
		action, _ := f.GetString("action")
		timeStr, _ := f.GetString("time")
		timestamp, _ := f.GetInt64("timestamp")
		data, _ := f.GetStringArray("data")
		retries, _ := f.GetInt("retries")
		timeout, _ := f.GetDuration("timeout")

		if addr == "" {
			cfg := loadConfig()
			host := cfg.Host
			if host == "" || host == "0.0.0.0" {
				host = "127.0.0.1"
			}
			addr = net.JoinHostPort(host, strconv.Itoa(cfg.Port))
		}

		if timestamp == 0 {
			t := time.Now()
			if timeStr != "" {
				var err error
				if t, err = time.Parse(time.RFC3339Nano, timeStr); err != nil {
					return fmt.Errorf("parse --time: %w", err)
				}
			}
			timestamp = types.ShiftTime(t)
		}

		req := &protocol.AddEventRequest{
			Database:  database,
			Table:     table,
			ObjectID:  objectID,
			Timestamp: timestamp,
		}
		if cmd.Flags().Changed("action") {
			req.Action = &action
		}
		for _, kv := range data {
			pair, err := parseDataPair(kv)
			if err != nil {
				return err
			}
			req.Data = append(req.Data, pair)
		}
		if err := req.Validate(); err != nil {
			return err
		}

		policy := client.DefaultRetryPolicy()
		policy.MaxAttempts = max(retries, 1)
		c := client.New(addr, client.WithRetryPolicy(policy), client.WithTimeout(timeout))

		resp, err := c.AddEvent(cmd.Context(), req)
		if err != nil {
			return err
		}
		if resp.Status != status.OK {
			return resp.Err()
		}
		color.New(color.FgGreen, color.Bold).Fprint(os.Stdout, "OK")
		fmt.Fprintf(os.Stdout, " event added to %s/%s (object %d)\n", database, table, objectID)
		return nil
	},
}

// parseDataPair parses key=value. The value is read as an integer, a float or
// a boolean when it parses as one, and as a string otherwise. Quote the value
// to force a string.
func parseDataPair(kv string) (protocol.DataPair, error) {
	key, raw, ok := strings.Cut(kv, "=")
	if !ok || key == "" {
		return protocol.DataPair{}, fmt.Errorf("invalid data pair %q: expected key=value", kv)
	}
	return protocol.DataPair{Key: key, Value: parseDataValue(raw)}, nil
}

func parseDataValue(raw string) any {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
