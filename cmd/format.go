package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/listings/internal/model"
)

var printer = message.NewPrinter(language.English)

// formatPrice renders the price with grouping; offers show both prices.
func formatPrice(l *model.Listing) string {
	price := printer.Sprintf("$%d", l.RegularPrice)
	if l.Offer && l.DiscountedPrice != nil {
		price = printer.Sprintf("$%d (was $%d)", *l.DiscountedPrice, l.RegularPrice)
	}
	if l.Kind == model.KindRent {
		price += " / month"
	}
	return price
}

func formatListings(out io.Writer, listings []model.Listing) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tNAME\tPRICE\tLOCATION\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t-----\t--------\t-------")

	for i := range listings {
		l := &listings[i]
		location := l.Location
		if len(location) > 40 {
			location = location[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID,
			l.Kind,
			l.Name,
			formatPrice(l),
			location,
			l.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// writeListing encodes one listing as json or yaml.
func writeListing(out io.Writer, l *model.Listing, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(l), "encode json")
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(l); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "encode yaml")
	default:
		return eris.Errorf("unknown output format %q (want json or yaml)", format)
	}
}
