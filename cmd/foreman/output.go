// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/foreman/internal/models"
)

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printWorkers(w io.Writer, report *models.StatusReport) error {
	fmt.Fprintf(w, "uptime %s\n\n", (time.Duration(report.UptimeSeconds) * time.Second).String())

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tSTATUS\tPID\tRESTARTS\tUPTIME\tINBOX\tCPU%\tMEM MB\tLAST ERROR")
	for _, wi := range report.Workers {
		pid := "-"
		if wi.PID != 0 {
			pid = fmt.Sprint(wi.PID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%.1f\t%.1f\t%s\n",
			wi.AgentID,
			wi.Status,
			pid,
			wi.RestartCount,
			time.Duration(wi.UptimeSeconds)*time.Second,
			wi.InboxDepth,
			wi.Usage.CPUPercent,
			wi.Usage.MemoryMB,
			wi.LastError,
		)
	}
	return tw.Flush()
}

func printQueue(w io.Writer, depths []models.QueueDepth) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tHIGH\tNORMAL\tLOW\tTOTAL")
	for _, d := range depths {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", d.AgentID, d.High, d.Normal, d.Low, d.Total)
	}
	return tw.Flush()
}

func printBottlenecks(w io.Writer, report *models.BottleneckReport) error {
	p := report.Percentiles
	fmt.Fprintf(w, "completed tasks: %d  p50 %dms  p95 %dms  p99 %dms\n\n", p.Count, p.P50, p.P95, p.P99)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tRECIPIENT\tKIND\tPRIORITY\tDURATION")
	for _, s := range report.Slowest {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			s.TaskID, s.Recipient, s.Kind, s.Priority,
			time.Duration(s.DurationMillis)*time.Millisecond)
	}
	return tw.Flush()
}

func printAlert(w io.Writer, a models.Alert) error {
	_, err := fmt.Fprintf(w, "%s  %-8s %-14s %-10s %s\n",
		a.CreatedAt.Local().Format(time.DateTime), a.Severity, a.Kind, a.AgentID, a.Message)
	return err
}
