// Command pagecontent-seed imports page content and stylesheets from a
// directory of .yaml, .json and .css files.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/startup"
)

func main() {
	dir := flag.String("dir", "content", "directory holding <pageId>.yaml|.json|.css files")
	force := flag.Bool("force", false, "overwrite pages and stylesheets that already exist")
	flag.Parse()

	report, err := startup.Seed(*dir, *force)
	if report != nil {
		fmt.Printf("pages:     %v\n", report.Pages)
		fmt.Printf("styles:    %v\n", report.Styles)
		fmt.Printf("conflicts: %v\n", report.Conflicts)
		failed := make([]string, 0, len(report.Failed))
		for name := range report.Failed {
			failed = append(failed, name)
		}
		sort.Strings(failed)
		for _, name := range failed {
			fmt.Printf("failed:    %s: %s\n", name, report.Failed[name])
		}
		fmt.Printf("took %s\n", report.Duration)
	}
	if err != nil {
		log.Printf("Seeding failed: %v", err)
		os.Exit(1)
	}
}
