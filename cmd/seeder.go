package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/teamtrackhq/workload-management/internal/backendstub"
	projectmodel "github.com/teamtrackhq/workload-management/internal/core/datamodel/project"
	usermodel "github.com/teamtrackhq/workload-management/internal/core/datamodel/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the stub store with sample data",
	Long:  `Seed the stub store with a small team and a few projects for development and testing.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := openStore(cfg.Database)
		if err != nil {
			log.Fatalf("failed to open store: %v", err)
		}

		store := backendstub.NewStore(db)
		if err := store.Migrate(); err != nil {
			log.Fatalf("failed to migrate store: %v", err)
		}

		users := []usermodel.User{
			{Name: "Ayu Lestari", Email: "ayu@teamtrack.dev", Role: usermodel.RoleManager},
			{Name: "Bima Nugraha", Email: "bima@teamtrack.dev", Role: usermodel.RoleDeveloper},
			{Name: "Citra Dewi", Email: "citra@teamtrack.dev", Role: usermodel.RoleDeveloper},
			{Name: "Dian Puspita", Email: "dian@teamtrack.dev", Role: usermodel.RoleDesigner},
			{Name: "Eko Santoso", Email: "eko@teamtrack.dev", Role: usermodel.RoleQA},
		}
		for i := range users {
			if err := store.CreateUser(&users[i]); err != nil {
				log.Fatalf("failed to seed user %s: %v", users[i].Email, err)
			}
		}

		projects := []projectmodel.Project{
			{Code: "DASH", Name: "Dashboard Revamp", Status: projectmodel.StatusInProgress},
			{Code: "MOB", Name: "Mobile App", Status: projectmodel.StatusOpen},
			{Code: "PRE", Name: "Q4 Presale", Status: projectmodel.StatusPresale},
		}
		for i := range projects {
			if err := store.CreateProject(&projects[i]); err != nil {
				log.Fatalf("failed to seed project %s: %v", projects[i].Code, err)
			}
		}

		// allocations go through AddMember so the capacity invariant holds
		assignments := []struct {
			project int
			user    int
			pct     int64
		}{
			{0, 1, 60},
			{0, 2, 40},
			{0, 3, 50},
			{1, 1, 30},
			{1, 4, 80},
			{2, 0, 20},
		}
		for _, a := range assignments {
			if _, err := store.AddMember(projects[a.project].ID, users[a.user].ID, decimal.NewFromInt(a.pct)); err != nil {
				log.Fatalf("failed to seed allocation: %v", err)
			}
		}

		fmt.Printf("Seeded %d users, %d projects, %d allocations at %s\n",
			len(users), len(projects), len(assignments), time.Now().Format(time.RFC3339))
	},
}
