package planning

import (
	"fmt"
	"regexp"
	"strings"
)

// PlanData holds everything needed to render a final plan document.
type PlanData struct {
	TaskSummary      string
	CreatedAt        string
	Version          int
	Status           string
	ExecutiveSummary string
	DesignDecisions  [][2]string // question, answer pairs
	PlanBody         string
}

// FormatPlan renders the final plan markdown: header, metadata, design
// decisions from the Q&A session, then the plan body.
func FormatPlan(data PlanData) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Implementation Plan: %s\n\n", data.TaskSummary)

	sb.WriteString("## Metadata\n")
	fmt.Fprintf(&sb, "- Created: %s\n", data.CreatedAt)
	fmt.Fprintf(&sb, "- Version: %d\n", data.Version)
	fmt.Fprintf(&sb, "- Status: %s\n\n", data.Status)

	if data.ExecutiveSummary != "" {
		sb.WriteString("## Executive Summary\n\n")
		sb.WriteString(data.ExecutiveSummary)
		sb.WriteString("\n\n")
	}

	if len(data.DesignDecisions) > 0 {
		sb.WriteString("## Design Decisions\n\n")
		sb.WriteString("Based on the following user preferences:\n\n")
		for _, pair := range data.DesignDecisions {
			fmt.Fprintf(&sb, "- **%s**: %s\n", pair[0], pair[1])
		}
		sb.WriteString("\n")
	}

	if data.PlanBody != "" {
		sb.WriteString(data.PlanBody)
		if !strings.HasSuffix(data.PlanBody, "\n") {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// DesignDecisionsFromQA converts answered questions into decision pairs for
// the plan document.
func DesignDecisionsFromQA(session QASession) [][2]string {
	var decisions [][2]string
	for _, q := range session.Questions {
		if q.SelectedAnswer == "" {
			continue
		}
		answer := q.SelectedAnswer
		if q.IsCustom {
			answer += " *(custom)*"
		}
		decisions = append(decisions, [2]string{q.Text, answer})
	}
	return decisions
}

var statusRE = regexp.MustCompile(`- Status: \w+`)

// UpdateStatus rewrites the Status line of a plan document.
func UpdateStatus(markdown, newStatus string) string {
	return statusRE.ReplaceAllString(markdown, "- Status: "+newStatus)
}

// ExtractSection returns the body of a ## section, or "" when absent.
func ExtractSection(markdown, sectionHeader string) string {
	start := strings.Index(markdown, sectionHeader)
	if start < 0 {
		return ""
	}

	contentStart := start + len(sectionHeader)
	if lineEnd := strings.Index(markdown[contentStart:], "\n"); lineEnd >= 0 {
		contentStart += lineEnd + 1
	}

	end := strings.Index(markdown[contentStart:], "\n## ")
	if end < 0 {
		return markdown[contentStart:]
	}
	return markdown[contentStart : contentStart+end]
}

// ReplaceSection swaps the content of a ## section, returning the input
// unchanged when the section does not exist.
func ReplaceSection(markdown, sectionHeader, newContent string) string {
	start := strings.Index(markdown, sectionHeader)
	if start < 0 {
		return markdown
	}

	end := strings.Index(markdown[start+len(sectionHeader):], "\n## ")
	if end < 0 {
		return markdown[:start] + newContent
	}
	end += start + len(sectionHeader) + 1
	return markdown[:start] + newContent + markdown[end:]
}
