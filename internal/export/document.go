package export

import (
	"fmt"
	"strings"
)

// RenderDocument produces the human-readable metadata and access summary
// delivered to partners alongside a package. Pure projection; no side
// effects.
func RenderDocument(pkg *Package, cohortName string) string {
	var b strings.Builder
	b.WriteString("RESEARCH DATA EXPORT PACKAGE\n")
	b.WriteString("============================\n\n")

	fmt.Fprintf(&b, "Package ID:       %s\n", pkg.ID.String())
	fmt.Fprintf(&b, "Cohort:           %s (%s)\n", cohortName, pkg.CohortID.String())
	fmt.Fprintf(&b, "Format:           %s\n", pkg.Format)
	fmt.Fprintf(&b, "Generated:        %s\n", pkg.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Generated by:     %s\n", pkg.GeneratedBy)
	if !pkg.StudyID.IsNil() {
		fmt.Fprintf(&b, "Study:            %s\n", pkg.StudyID.String())
	}
	if pkg.ProtocolVersion != "" {
		fmt.Fprintf(&b, "Protocol version: %s\n", pkg.ProtocolVersion)
	}
	fmt.Fprintf(&b, "Record count:     %d\n", pkg.RecordCount)

	b.WriteString("\nFILE MANIFEST\n-------------\n")
	for _, file := range pkg.FileManifest {
		fmt.Fprintf(&b, "%s\n  sha256: %s\n  records: %d\n", file.Filename, file.ContentHash, file.RecordCount)
	}

	b.WriteString("\nMETADATA\n--------\n")
	fmt.Fprintf(&b, "Average quality score:   %.1f\n", pkg.Metadata.AvgQualityScore)
	fmt.Fprintf(&b, "Observed date range:     %s to %s\n",
		dayString(pkg.Metadata.DateRangeStart), dayString(pkg.Metadata.DateRangeEnd))
	fmt.Fprintf(&b, "De-identification:       %s\n", pkg.Metadata.DeidMethod)
	if len(pkg.Metadata.SourceTypes) > 0 {
		fmt.Fprintf(&b, "Capture sources:         %s\n", strings.Join(pkg.Metadata.SourceTypes, ", "))
	}

	b.WriteString("\nACCESS LOG\n----------\n")
	if len(pkg.AccessLog) == 0 {
		b.WriteString("No accesses recorded.\n")
	}
	for _, entry := range pkg.AccessLog {
		fmt.Fprintf(&b, "%s  %s\n", entry.AccessedAt.UTC().Format("2006-01-02 15:04:05"), entry.AccessedBy)
	}
	return b.String()
}
