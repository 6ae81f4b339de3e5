package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/apperr"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/quote"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/roof"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/store"
)

var (
	measureLat   float64
	measureLng   float64
	measurePlace string

	quoteSave    bool
	quoteTitle   string
	quoteAddress string
)

// quoteFile is the input of the quote command. Sections are measured from
// the coordinates when none are given.
type quoteFile struct {
	Lat      *float64       `json:"lat,omitempty"`
	Lng      *float64       `json:"lng,omitempty"`
	PlaceID  string         `json:"placeId,omitempty"`
	Job      quote.JobInput `json:"job"`
	Sections []roof.Section `json:"sections,omitempty"`
}

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Measure a property through the adapter chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.pipeline.ResolveMeasurement(cmd.Context(), measureLat, measureLng, measurePlace)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), m)
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote <file.json>",
	Short: "Price a quote described in a JSON file",
	Long: `Price a quote described in a JSON file:

  {
    "job": {"county": "Miami-Dade", "storyCount": 2, "tearOffLayers": 1},
    "sections": [{"id": "main", "kind": "SLOPED", "planAreaSqFt": 1800,
                  "risePer12": 6, "complexity": {"facets": 8}}]
  }

When "sections" is omitted, "lat" and "lng" (and optionally "placeId")
are measured first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := readQuoteFile(args[0])
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		var requestID string
		if len(in.Sections) == 0 {
			if in.Lat == nil || in.Lng == nil {
				return apperr.Validation("quote file needs sections or lat/lng")
			}
			m, err := a.pipeline.ResolveMeasurement(ctx, *in.Lat, *in.Lng, in.PlaceID)
			if err != nil {
				return err
			}
			in.Sections = m.Sections
			requestID = m.RequestID
		}

		job, err := in.Job.Job()
		if err != nil {
			return err
		}
		res, err := a.pipeline.PriceQuote(ctx, in.Sections, job)
		if err != nil {
			return err
		}

		if quoteSave {
			rec, err := a.store.SaveQuote(ctx, store.QuoteRecord{
				Title:                quoteTitle,
				Address:              quoteAddress,
				MeasurementRequestID: requestID,
				Quote:                res,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "saved quote %s\n", rec.ID)
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var financeCmd = &cobra.Command{
	Use:   "finance <amount>",
	Short: "List financing options for an amount",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[0])
		if err != nil {
			return apperr.Validation("invalid amount %q", args[0])
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.pipeline.CalculateFinancing(cmd.Context(), amount)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	measureCmd.Flags().Float64Var(&measureLat, "lat", 0, "latitude [REQUIRED]")
	measureCmd.Flags().Float64Var(&measureLng, "lng", 0, "longitude [REQUIRED]")
	measureCmd.Flags().StringVar(&measurePlace, "place", "", "place ID, used to find manual overrides")
	_ = measureCmd.MarkFlagRequired("lat")
	_ = measureCmd.MarkFlagRequired("lng")

	quoteCmd.Flags().BoolVar(&quoteSave, "save", false, "store the priced quote")
	quoteCmd.Flags().StringVar(&quoteTitle, "title", "", "title of the saved quote")
	quoteCmd.Flags().StringVar(&quoteAddress, "address", "", "property address of the saved quote")
}

func readQuoteFile(path string) (quoteFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return quoteFile{}, fmt.Errorf("read quote file: %w", err)
	}
	var in quoteFile
	if err := json.Unmarshal(raw, &in); err != nil {
		return quoteFile{}, apperr.Validation("parse quote file %s: %v", path, err)
	}
	return in, nil
}
