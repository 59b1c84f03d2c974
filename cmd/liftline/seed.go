package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alecgard/liftline/internal/account"
	"github.com/alecgard/liftline/internal/config"
	"github.com/alecgard/liftline/internal/docstore"
	"github.com/alecgard/liftline/internal/model"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo team member with a site and a complaint",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

const (
	demoEmail         = "demo.installer@example.com"
	demoPassword      = "liftline-demo"
	demoCustomerEmail = "demo.customer@example.com"
	demoServiceCode   = "104729"
)

func demoSite(today string) model.Site {
	return model.Site{
		SiteID:      "SITE-1001",
		LiftID:      "LIFT-1001",
		SiteName:    "Lakeview Residency",
		SiteAddress: "14 Lake Road, Pune",
		OwnerEmail:  demoCustomerEmail,
		OwnerName:   "Meera Kulkarni",
		CivilWork: model.Checklist{
			Flags: map[string]bool{"pitReady": true, "headroomChecked": false},
		},
		Tasks: map[string]string{
			"Rail Fixing":  today,
			"Door Fitting": today,
		},
		QualityChecks: map[string]model.QualityResult{
			"Safety check": model.QualityPending,
		},
		Materials: []model.Material{
			{Name: "Guide Rails", Status: model.MaterialDelivered},
			{Name: "Cabin", Status: model.MaterialOutForDelivery},
			{Name: "Door Sets", Status: model.MaterialPlaced},
		},
	}
}

func demoComplaint(now time.Time) model.Complaint {
	return model.Complaint{
		ComplaintID:       "CMP-1001",
		Status:            model.ComplaintAccepted,
		SecretServiceCode: demoServiceCode,
		CustomerEmail:     demoCustomerEmail,
		CustomerName:      "Meera Kulkarni",
		Subject:           "Cabin door closes slowly",
		SiteID:            "SITE-1001",
		SiteAddress:       "14 Lake Road, Pune",
		CreatedAt:         model.FlexString(now.UTC().Format(model.TimestampLayout)),
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx := context.Background()
	be, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	accounts := account.NewStore(be.docs)
	_, err = accounts.Create(ctx, account.CreateInput{
		Email:    demoEmail,
		Password: demoPassword,
		Name:     "Demo Installer",
		Role:     model.RoleInstaller,
	})
	if errors.Is(err, account.ErrAccountExists) {
		slog.Info("demo data already exists, skipping seed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating demo account: %w", err)
	}

	now := time.Now()
	site := demoSite(model.LocalDate(now))
	c := demoComplaint(now)

	docs := map[string]any{
		docstore.TeamSitePath(demoEmail, site.SiteID):             site,
		docstore.GlobalSitePath(uuid.NewString()):                 site,
		docstore.TeamComplaintPath(demoEmail, c.ID()):             c,
		docstore.GlobalComplaintPath(c.ID()):                      c,
		docstore.CustomerComplaintPath(demoCustomerEmail, c.ID()): c,
		docstore.CustomerPath(demoCustomerEmail):                  model.Customer{Name: "Meera Kulkarni"},
	}
	for path, v := range docs {
		if err := seedDoc(ctx, be.docs, path, v); err != nil {
			return err
		}
	}

	slog.Info("seeded demo data", "member", demoEmail, "site", site.SiteID, "complaint", c.ID())
	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Member:       %s\n", demoEmail)
	fmt.Printf("Password:     %s\n", demoPassword)
	fmt.Printf("Site:         %s\n", site.SiteID)
	fmt.Printf("Complaint:    %s (service code %s)\n", c.ID(), demoServiceCode)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -X POST http://localhost:8080/api/v1/auth/login -d '{\"email\":\"%s\",\"password\":\"%s\"}'\n", demoEmail, demoPassword)
	fmt.Printf("  curl -H 'Authorization: Bearer <token>' http://localhost:8080/api/v1/sites/%s/tasks/today\n", site.SiteID)

	return nil
}

func seedDoc(ctx context.Context, docs docstore.Store, path string, v any) error {
	fields, err := model.Encode(v)
	if err != nil {
		return err
	}
	if err := docs.Set(ctx, path, fields); err != nil {
		return fmt.Errorf("seeding %s: %w", path, err)
	}
	return nil
}
