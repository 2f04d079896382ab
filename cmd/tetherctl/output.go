package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"github.com/CaioWing/Tether/internal/diagnostics"
	"github.com/CaioWing/Tether/internal/domain"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func ago(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return time.Since(*t).Truncate(time.Second).String() + " ago"
}

func printDevices(w io.Writer, devices []*domain.Device) error {
	if viper.GetBool("json") {
		return printJSON(w, devices)
	}
	t := newTable(w, table.Row{"ID", "Name", "Type", "Address", "Status", "Last Seen"})
	for _, d := range devices {
		t.AppendRow(table.Row{d.ID, d.Name, d.ConnectionType, d.Address(), d.Status, ago(d.LastSeen)})
	}
	t.Render()
	return nil
}

func printPayloads(w io.Writer, payloads []*domain.Payload) error {
	if viper.GetBool("json") {
		return printJSON(w, payloads)
	}
	t := newTable(w, table.Row{"ID", "Name", "Version", "Size", "SHA-256"})
	for _, p := range payloads {
		t.AppendRow(table.Row{p.ID, p.Name, p.Version, p.Size, p.ChecksumSHA256[:min(12, len(p.ChecksumSHA256))]})
	}
	t.Render()
	return nil
}

func printDeployments(w io.Writer, deployments []*domain.Deployment) error {
	if viper.GetBool("json") {
		return printJSON(w, deployments)
	}
	t := newTable(w, table.Row{"ID", "Device", "Payload", "Status", "Result"})
	for _, d := range deployments {
		result := ""
		if d.Result != nil {
			result = *d.Result
		}
		t.AppendRow(table.Row{d.ID, d.DeviceID, d.PayloadID, d.Status, result})
	}
	t.Render()
	return nil
}

func printCheckResults(w io.Writer, results []diagnostics.CheckResult) error {
	if viper.GetBool("json") {
		return printJSON(w, results)
	}
	t := newTable(w, table.Row{"Check", "Outcome", "Remediation"})
	for _, r := range results {
		fix := r.Remediation
		if r.BlockedBy != "" {
			fix += " (after fixing " + r.BlockedBy + ")"
		}
		t.AppendRow(table.Row{r.Title, r.Outcome, fix})
	}
	t.Render()
	return nil
}
