package commands

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MEKXH/gatekeeper/internal/audit"
)

func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit records from a running gateway",
		RunE:  runAudit,
	}
	addGatewayFlags(cmd)
	cmd.Flags().Int("limit", 0, "Max records to show (default audit.default_limit)")
	cmd.Flags().String("tool", "", "Only records for this tool")
	cmd.Flags().String("decision", "", "Only records with this decision (e.g. BLOCKED)")

	cmd.AddCommand(newAuditVerifyCmd())
	return cmd
}

func newAuditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit hash chain",
		RunE:  runAuditVerify,
	}
}

func runAudit(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	tool, _ := cmd.Flags().GetString("tool")
	decision, _ := cmd.Flags().GetString("decision")
	if limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	if d := strings.TrimSpace(decision); d != "" {
		if _, ok := audit.ParseDecision(d); !ok {
			return fmt.Errorf("unknown decision %q", d)
		}
	}

	client, err := newGatewayClient(cmd)
	if err != nil {
		return err
	}

	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if t := strings.TrimSpace(tool); t != "" {
		query.Set("tool", t)
	}
	if d := strings.TrimSpace(decision); d != "" {
		query.Set("decision", d)
	}
	path := "/audit"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp struct {
		Records []audit.Record `json:"records"`
		Total   int            `json:"total"`
	}
	if err := client.do(commandContext(cmd), http.MethodGet, path, nil, &resp); err != nil {
		return err
	}
	if len(resp.Records) == 0 {
		fmt.Println("Audit log is empty.")
		return nil
	}

	cols := []column{
		{title: "SEQ", width: 5},
		{title: "TIME", width: 19},
		{title: "TOOL", width: 12},
		{title: "RISK", width: 10},
		{title: "DECISION", width: 16},
		{title: "DETAIL", width: 40},
	}
	rows := make([][]cell, 0, len(resp.Records))
	for _, rec := range resp.Records {
		rows = append(rows, []cell{
			{text: strconv.FormatUint(rec.Seq, 10), color: mutedColor},
			{text: rec.Time.Local().Format(time.DateTime)},
			{text: rec.Tool},
			{text: rec.Risk, color: riskColor(rec.Risk)},
			{text: string(rec.Decision)},
			{text: rec.Detail},
		})
	}
	printTable(fmt.Sprintf("Audit Log (%d of %d)", len(resp.Records), resp.Total), cols, rows)
	return nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	client, err := newGatewayClient(cmd)
	if err != nil {
		return err
	}
	var resp struct {
		OK      bool   `json:"ok"`
		Records int    `json:"records"`
		Error   string `json:"error"`
	}
	if err := client.do(commandContext(cmd), http.MethodGet, "/audit/verify", nil, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("audit chain broken: %s", resp.Error)
	}
	fmt.Printf("Audit chain OK (%d records)\n", resp.Records)
	return nil
}
