package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/theapemachine/a2a-go/pkg/a2a"
)

var (
	renderHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	renderKey    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	renderValue  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	renderHalt   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	renderOK     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("78"))
	renderBad    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
)

func kv(key, value string) string {
	return "  " + renderKey.Render(key) + " " + renderValue.Render(value)
}

func stateStyle(state a2a.TaskState) lipgloss.Style {
	switch state {
	case a2a.TaskStateCompleted:
		return renderOK
	case a2a.TaskStateFailed, a2a.TaskStateCanceled:
		return renderBad
	case a2a.TaskStateInputReq:
		return renderHalt
	default:
		return renderValue
	}
}

// partSummary condenses a part to a single printable line: text verbatim,
// file and data parts by reference.
func partSummary(part a2a.Part) string {
	switch part.Type {
	case a2a.PartTypeFile:
		if part.File == nil {
			return "(file)"
		}
		if part.File.URI != "" {
			return fmt.Sprintf("(file %s %s)", part.File.Name, part.File.URI)
		}
		return fmt.Sprintf("(file %s inline %s)", part.File.Name, part.File.MimeType)
	case a2a.PartTypeData:
		return fmt.Sprintf("(data %s)", part.DataMimeType)
	default:
		return part.Text
	}
}

func partsSummary(parts []a2a.Part) string {
	summaries := make([]string, 0, len(parts))
	for _, part := range parts {
		summaries = append(summaries, partSummary(part))
	}
	return strings.Join(summaries, " ")
}

// renderTask prints a task the way the CLI subcommands show results: a
// state-colored header, the conversation so far, produced artifacts, and
// any recorded metadata.
func renderTask(task *a2a.Task) string {
	lines := []string{
		renderHeader.Render("task "+task.TaskID) + " " + stateStyle(task.Status.State).Render(string(task.Status.State)),
		kv("context", task.ContextID),
		kv("updated", task.Status.Timestamp.Format(time.RFC3339)),
	}
	if msg := task.Status.Message; msg != nil {
		lines = append(lines, kv("status message", msg.String()))
	}

	for _, message := range task.History {
		lines = append(lines, kv(message.Role, partsSummary(message.Parts)))
	}

	for _, artifact := range task.Artifacts {
		name := artifact.Name
		if name == "" {
			name = artifact.ArtifactID
		}
		lines = append(lines, kv("artifact "+name, partsSummary(artifact.Parts)))
	}

	if len(task.Metadata) > 0 {
		keys := make([]string, 0, len(task.Metadata))
		for k := range task.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, kv("metadata "+k, fmt.Sprintf("%v", task.Metadata[k])))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderCard prints the manifest served at /.well-known/agent.json.
func renderCard(card *a2a.AgentCard) string {
	lines := []string{
		renderHeader.Render(card.Name) + " " + renderValue.Render("v"+card.Version),
		kv("did", card.DID),
		kv("url", card.URL),
	}
	if card.Description != nil {
		lines = append(lines, kv("about", *card.Description))
	}

	capabilities := []string{}
	if card.Capabilities.Streaming {
		capabilities = append(capabilities, "streaming")
	}
	if card.Capabilities.PushNotifications {
		capabilities = append(capabilities, "push-notifications")
	}
	capabilities = append(capabilities, card.Capabilities.Extensions...)
	if len(capabilities) > 0 {
		lines = append(lines, kv("capabilities", strings.Join(capabilities, ", ")))
	}

	for _, skill := range card.Skills {
		detail := skill.Name
		if skill.Description != nil {
			detail += " — " + *skill.Description
		}
		lines = append(lines, kv("skill "+skill.ID, detail))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
