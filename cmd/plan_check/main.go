package main

import (
	"fmt"
	"os"
	"strings"

	"dev/bravebird/page-verifier/pkg/ingestion"
	"dev/bravebird/page-verifier/pkg/models"
	"dev/bravebird/page-verifier/pkg/verifier"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("usage: plan_check <plan.yaml|plan.json>")
		os.Exit(2)
	}

	parser := ingestion.NewPlanParser()
	if err := parser.ParseFile(os.Args[1]); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	plan := parser.GetPlan()
	fmt.Println("Plan:", plan.Name)
	fmt.Println("Base URL:", plan.BaseURL)
	fmt.Println("Output dir:", plan.OutputDir)
	fmt.Println("---")
	printSteps(plan, plan.Steps, 0)
}

func printSteps(plan models.Plan, steps []models.Step, depth int) {
	indent := strings.Repeat("  ", depth)
	for i, s := range steps {
		switch s.Type {
		case models.StepNavigate:
			fmt.Printf("%s%d. navigate %s\n", indent, i+1, verifier.ResolveURL(plan.BaseURL, s.URL))
		case models.StepScreenshot:
			fmt.Printf("%s%d. screenshot %s\n", indent, i+1, s.Path)
		case models.StepProbe, models.StepClick:
			fmt.Printf("%s%d. %s %s\n", indent, i+1, s.Type, verifier.Selector(s.Target))
		case models.StepWait:
			fmt.Printf("%s%d. wait %s\n", indent, i+1, s.Delay())
		}
		if len(s.OnFound) > 0 {
			fmt.Printf("%s   if found:\n", indent)
			printSteps(plan, s.OnFound, depth+2)
		}
	}
}
