package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/erc-protest-agent/internal/research"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Print the research prompt for a business",
	Long: `Prints the prompt a business owner pastes into a chat assistant to research the
government orders that affected them. --customize asks the model to tailor it;
--sources also lists candidate official order documents.`,
	RunE: runPrompt,
}

var (
	promptBusinessName string
	promptLocation     string
	promptNAICS        string
	promptPeriod       string
	promptCustomize    bool
	promptSources      bool
)

func init() {
	promptCmd.Flags().StringVar(&promptBusinessName, "business-name", "", "Business name (required)")
	promptCmd.Flags().StringVar(&promptLocation, "location", "", "City, State (required)")
	promptCmd.Flags().StringVar(&promptNAICS, "naics", "", "NAICS code")
	promptCmd.Flags().StringVar(&promptPeriod, "period", "", "Claim quarter, e.g. \"Q2 2020\" (required)")
	promptCmd.Flags().BoolVar(&promptCustomize, "customize", false, "Have the model tailor the prompt")
	promptCmd.Flags().BoolVar(&promptSources, "sources", false, "Search for official order documents")
	rootCmd.AddCommand(promptCmd)
}

func runPrompt(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	req := research.Request{
		BusinessName: promptBusinessName,
		Location:     promptLocation,
		NAICSCode:    promptNAICS,
		Period:       promptPeriod,
	}
	prompt, err := research.BuildPrompt(req)
	if err != nil {
		return err
	}

	if promptCustomize {
		client, err := newLLMClient(ctx, cfg.LLM, logger)
		if err != nil {
			return err
		}
		if client != nil {
			prompt = research.Customize(ctx, client, prompt, req, logger)
			_ = client.Close()
		}
	}
	_, _ = fmt.Fprintln(out, prompt)

	if !promptSources {
		return nil
	}
	searcher, err := newSearcher(ctx, cfg.Research, logger)
	if err != nil {
		return err
	}
	if searcher == nil {
		return fmt.Errorf("source search needs research.search_api_key and research.search_engine_id")
	}
	sources, err := searcher.FindOrderSources(ctx, req, cfg.Research.ResultsPerQuery)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, "\nCandidate order sources:")
	for i, s := range sources {
		marker := ""
		if s.Official {
			marker = " [official]"
		}
		_, _ = fmt.Fprintf(out, "%d. %s%s\n   %s\n", i+1, s.Title, marker, s.URL)
	}
	return nil
}
