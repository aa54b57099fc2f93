package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/trebuchet-org/treb-hardhat/internal/domain"
	"github.com/trebuchet-org/treb-hardhat/internal/usecase"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	labelStyle   = color.New(color.Faint)
	successStyle = color.New(color.FgGreen)
	failureStyle = color.New(color.FgRed)
	pathStyle    = color.New(color.FgYellow)
	urlStyle     = color.New(color.FgBlue)
	headerStyle  = color.New(color.FgCyan, color.Bold)
)

// NodeRenderer renders node operation results
type NodeRenderer struct {
	out  io.Writer
	json bool
}

// NewNodeRenderer creates a new node renderer
func NewNodeRenderer(out io.Writer, asJSON bool) *NodeRenderer {
	return &NodeRenderer{out: out, json: asJSON}
}

var _ Renderer[*usecase.ManageNodeResult] = (*NodeRenderer)(nil)

// Render renders the node operation result
func (r *NodeRenderer) Render(result *usecase.ManageNodeResult) error {
	if r.json {
		return r.renderJSON(result)
	}

	switch result.Operation {
	case "start":
		return r.renderStart(result)
	case "status":
		return r.renderStatus(result)
	case "config":
		successStyle.Fprintf(r.out, "✅ %s\n", result.Message)
		return nil
	default:
		return fmt.Errorf("unknown operation: %s", result.Operation)
	}
}

func (r *NodeRenderer) renderJSON(result *usecase.ManageNodeResult) error {
	output := map[string]any{
		"operation": result.Operation,
		"success":   result.Success,
	}
	if result.Message != "" {
		output["message"] = result.Message
	}
	if result.ConfigFile != "" {
		output["configFile"] = result.ConfigFile
	}
	if result.Operation != "config" {
		output["status"] = result.Status
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(r.out, string(data))
	return err
}

func (r *NodeRenderer) renderStart(result *usecase.ManageNodeResult) error {
	successStyle.Fprintf(r.out, "✅ %s\n", result.Message)
	urlStyle.Fprintf(r.out, "🌐 RPC URL: %s\n", result.Status.Endpoint.CleanURI())
	if result.Status.LogFile != "" {
		pathStyle.Fprintf(r.out, "📋 Logs: %s\n", result.Status.LogFile)
	}
	if fork := result.Status.Fork; fork != nil {
		fmt.Fprintf(r.out, "🍴 Forking %s:%s\n", fork.Ecosystem, fork.UpstreamNetwork())
	}
	labelStyle.Fprintln(r.out, "Press Ctrl+C to stop")
	return nil
}

func (r *NodeRenderer) renderStatus(result *usecase.ManageNodeResult) error {
	headerStyle.Fprintln(r.out, "📊 Hardhat Node Status:")

	status := result.Status
	if !result.Success {
		failureStyle.Fprintf(r.out, "Status: 🔴 %s\n", StateTitle(status.State))
		if result.Message != "" {
			labelStyle.Fprintln(r.out, result.Message)
		}
		return nil
	}

	fmt.Fprintln(r.out, statusTable(status))
	return nil
}

// StateTitle formats a session state for display
func StateTitle(state domain.SessionState) string {
	return cases.Title(language.English).String(string(state))
}

func statusTable(status domain.NodeStatus) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateHeader = false
	t.Style().Box = table.BoxStyle{PaddingRight: "   "}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft},
	})

	state := StateTitle(status.State)
	if status.State == domain.StateHealthy {
		state = successStyle.Sprint("🟢 " + state)
	}

	t.AppendRow(table.Row{labelStyle.Sprint("State"), state})
	t.AppendRow(table.Row{labelStyle.Sprint("RPC URL"), status.Endpoint.CleanURI()})
	if status.ClientVersion != "" {
		t.AppendRow(table.Row{labelStyle.Sprint("Client"), status.ClientVersion})
	}
	if status.ChainID != 0 {
		t.AppendRow(table.Row{labelStyle.Sprint("Chain ID"), strconv.FormatUint(status.ChainID, 10)})
	}
	t.AppendRow(table.Row{labelStyle.Sprint("PoA"), yesNo(status.PoA)})
	if status.Managed {
		t.AppendRow(table.Row{labelStyle.Sprint("PID"), strconv.Itoa(status.PID)})
	}
	if status.LogFile != "" {
		t.AppendRow(table.Row{labelStyle.Sprint("Log file"), status.LogFile})
	}
	if fork := status.Fork; fork != nil {
		t.AppendRow(table.Row{labelStyle.Sprint("Fork"), fmt.Sprintf("%s:%s", fork.Ecosystem, fork.UpstreamNetwork())})
		if fork.BlockNumber != nil {
			t.AppendRow(table.Row{labelStyle.Sprint("Fork block"), strconv.FormatUint(*fork.BlockNumber, 10)})
		}
	}

	return t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
