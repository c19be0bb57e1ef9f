// Package protocol renders study protocols into fixed-section plain-text
// submission documents for review boards and partners. Pure projection; no
// side effects.
package protocol

import (
	"fmt"
	"strings"
	"time"

	id "tessera/pkg/domain"
)

// StudyProtocol describes one research study seeking approval.
type StudyProtocol struct {
	StudyID               id.StudyID
	Title                 string
	Version               string
	PrincipalInvestigator string
	Sponsor               string
	Objective             string
	Population            string
	DataElements          []string
	ConsentScopes         []id.ConsentScope
	RetentionPolicy       string
	SubmittedAt           time.Time
}

// Template carries the boilerplate sections the submitting organization
// wraps around every protocol.
type Template struct {
	Organization    string
	BoardName       string
	Preamble        string
	EthicsStatement string
	ContactEmail    string
}

// RenderSubmission produces the submission document. Section order is fixed;
// empty optional fields collapse rather than leaving blank headings.
func RenderSubmission(p StudyProtocol, tmpl Template) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PROTOCOL SUBMISSION: %s\n", p.Title)
	b.WriteString(strings.Repeat("=", 21+len(p.Title)) + "\n\n")

	fmt.Fprintf(&b, "Submitted to:   %s\n", tmpl.BoardName)
	fmt.Fprintf(&b, "Organization:   %s\n", tmpl.Organization)
	fmt.Fprintf(&b, "Study ID:       %s\n", p.StudyID.String())
	fmt.Fprintf(&b, "Version:        %s\n", p.Version)
	fmt.Fprintf(&b, "Investigator:   %s\n", p.PrincipalInvestigator)
	if p.Sponsor != "" {
		fmt.Fprintf(&b, "Sponsor:        %s\n", p.Sponsor)
	}
	if !p.SubmittedAt.IsZero() {
		fmt.Fprintf(&b, "Submitted:      %s\n", p.SubmittedAt.UTC().Format("2006-01-02"))
	}

	if tmpl.Preamble != "" {
		b.WriteString("\n" + tmpl.Preamble + "\n")
	}

	b.WriteString("\n1. OBJECTIVE\n")
	b.WriteString(p.Objective + "\n")

	b.WriteString("\n2. STUDY POPULATION\n")
	b.WriteString(p.Population + "\n")

	b.WriteString("\n3. DATA ELEMENTS\n")
	for _, element := range p.DataElements {
		b.WriteString("  - " + element + "\n")
	}

	b.WriteString("\n4. CONSENT SCOPES REQUIRED\n")
	for _, scope := range p.ConsentScopes {
		b.WriteString("  - " + scope.String() + "\n")
	}

	b.WriteString("\n5. DATA RETENTION\n")
	b.WriteString(p.RetentionPolicy + "\n")

	if tmpl.EthicsStatement != "" {
		b.WriteString("\n6. ETHICS STATEMENT\n")
		b.WriteString(tmpl.EthicsStatement + "\n")
	}

	if tmpl.ContactEmail != "" {
		fmt.Fprintf(&b, "\nContact: %s\n", tmpl.ContactEmail)
	}
	return b.String()
}
