package main

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listings/internal/auth"
	"github.com/sells-group/listings/internal/listing"
)

// createFlags maps command-line flags to draft fields.
var createFlags = []struct {
	flag  string
	field listing.Field
	usage string
}{
	{"type", listing.FieldKind, "listing type: sale or rent"},
	{"name", listing.FieldName, "listing name"},
	{"bedrooms", listing.FieldBedrooms, "number of bedrooms"},
	{"bathrooms", listing.FieldBathrooms, "number of bathrooms"},
	{"parking", listing.FieldParking, "parking spot: true or false"},
	{"furnished", listing.FieldFurnished, "furnished: true or false"},
	{"address", listing.FieldAddress, "street address"},
	{"geolocation", listing.FieldGeolocation, "resolve the address through the geocoder: true or false"},
	{"lat", listing.FieldLatitude, "latitude, used when geolocation is off"},
	{"lng", listing.FieldLongitude, "longitude, used when geolocation is off"},
	{"offer", listing.FieldOffer, "discount offer: true or false"},
	{"regular-price", listing.FieldRegularPrice, "regular price"},
	{"discounted-price", listing.FieldDiscountedPrice, "discounted price, used with --offer"},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a listing from flags and local image files",
	Example: `  listings create --owner u1 --type rent --name "Cozy Loft Flat" \
    --address "1 Infinite Loop, Cupertino" --regular-price 1500 \
    --image front.jpg --image kitchen.png`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "create")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		owner, _ := cmd.Flags().GetString("owner")
		paths, _ := cmd.Flags().GetStringSlice("image")

		form := listing.NewForm(env.Submitter, env.Submitter.Geocoding())
		form.Mount(auth.NewSignedInSession(auth.Identity{UID: owner}))
		defer form.Close()

		if err := applyFlags(form, cmd); err != nil {
			return err
		}
		images, err := loadImages(paths)
		if err != nil {
			return err
		}
		if err := form.Apply(listing.SetImages{Images: images}); err != nil {
			return err
		}

		res, err := form.Submit(ctx)
		if err != nil {
			zap.L().Debug("create listing failed", zap.Error(err))
			return eris.New(listing.NoticeOf(err))
		}

		formatCreated(os.Stdout, res)
		return nil
	},
}

// applyFlags applies every flag the user set, in form order.
func applyFlags(form *listing.Form, cmd *cobra.Command) error {
	flags := cmd.Flags()
	for _, cf := range createFlags {
		if !flags.Changed(cf.flag) {
			continue
		}
		raw, _ := flags.GetString(cf.flag)
		e, err := listing.ParseEdit(string(cf.field), raw)
		if err != nil {
			return eris.Wrapf(err, "--%s", cf.flag)
		}
		if err := form.Apply(e); err != nil {
			return err
		}
	}
	return nil
}

func loadImages(paths []string) ([]listing.Image, error) {
	images := make([]listing.Image, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "read image %s", p)
		}
		images = append(images, listing.Image{
			Name:        filepath.Base(p),
			ContentType: mime.TypeByExtension(filepath.Ext(p)),
			Data:        data,
		})
	}
	return images, nil
}

func formatCreated(out io.Writer, res *listing.Result) {
	_, _ = fmt.Fprintf(out, "Listing saved: %s\n", res.ID)
	_, _ = fmt.Fprintf(out, "Path: %s\n", res.Path)
	if res.Record == nil {
		return
	}
	r := res.Record
	_, _ = fmt.Fprintf(out, "Location: %s (%.6f, %.6f)\n", r.Location, r.Geolocation.Lat, r.Geolocation.Lng)
	_, _ = fmt.Fprintf(out, "Price: %s\n", formatPrice(r))
	_, _ = fmt.Fprintf(out, "Images: %d\n", len(r.ImageURLs))
}

func init() {
	f := createCmd.Flags()
	f.String("owner", "", "owner user id the listing is created for")
	_ = createCmd.MarkFlagRequired("owner")
	f.StringSlice("image", nil, "image file to upload (repeatable)")
	for _, cf := range createFlags {
		f.String(cf.flag, "", cf.usage)
	}
	rootCmd.AddCommand(createCmd)
}
