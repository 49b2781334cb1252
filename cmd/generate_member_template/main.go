package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"member-onboarding/internal/service"
)

func main() {
	output := flag.String("o", filepath.Join("storage", "templates", "member_import_template.xlsx"), "output path")
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}

	if err := service.NewExcelService().SaveMemberTemplate(*output); err != nil {
		fmt.Printf("Error saving file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Member import template created: %s\n", *output)
}
