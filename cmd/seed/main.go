// Seed inserts sample owners, applications, gyms and plans for local runs.
// Idempotent: it does nothing when the seed admin profile already exists.
package main

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	appdomain "gymhub/backend/internal/application/domain"
	apprepo "gymhub/backend/internal/application/repository"
	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/backend/postgres"
	"gymhub/backend/internal/backend/supabase"
	"gymhub/backend/internal/config"
	"gymhub/backend/internal/db"
	gymdomain "gymhub/backend/internal/gym/domain"
	gymrepo "gymhub/backend/internal/gym/repository"
	roledomain "gymhub/backend/internal/role/domain"
	rolerepo "gymhub/backend/internal/role/repository"
	roleservice "gymhub/backend/internal/role/service"
	userdomain "gymhub/backend/internal/user/domain"
	userrepo "gymhub/backend/internal/user/repository"
)

type seedUser struct {
	id, name, email string
	role            roledomain.Role
}

var users = []seedUser{
	{"seed-admin-001", "Ada Admin", "admin@example.com", roledomain.RoleAdmin},
	{"seed-owner-001", "Omar Owner", "owner@example.com", roledomain.RoleUser},
	{"seed-applicant-001", "Priya Applicant", "applicant@example.com", roledomain.RoleUser},
	{"seed-member-001", "Mia Member", "member@example.com", roledomain.RoleUser},
}

type seedPlan struct {
	name       string
	days       int
	price      string
	discounted string
	badge      string
}

var gyms = []struct {
	gym   gymdomain.Gym
	plans []seedPlan
}{
	{
		gym: gymdomain.Gym{
			Name:        "Iron Works",
			Description: "Free weights, racks and a turf lane.",
			Location:    "12 Mill Road, Riverside",
			Timings:     "Mon-Sat 05:00-23:00",
		},
		plans: []seedPlan{
			{"Monthly", 30, "49.00", "", ""},
			{"Quarterly", 90, "129.00", "99.00", "Best value"},
		},
	},
	{
		gym: gymdomain.Gym{
			Name:        "Flow Studio",
			Description: "Yoga, pilates and mobility classes.",
			Location:    "4 Harbour Lane, Old Town",
			Timings:     "Daily 06:00-21:00",
		},
		plans: []seedPlan{
			{"Drop-in week", 7, "19.99", "", ""},
			{"Annual", 365, "499.00", "449.00", "Popular"},
		},
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	store, closeStore := openStore(cfg)
	defer closeStore()
	store = backend.WithTimeout(store, cfg.BackendTimeout())
	ctx := context.Background()

	profiles := userrepo.NewStoreRepository(store)
	if ok, err := profiles.Exists(ctx, users[0].id); err != nil {
		log.Fatalf("seed check: %v", err)
	} else if ok {
		log.Println("Seed already applied. Skipping.")
		return
	}

	roles := rolerepo.NewStoreRepository(store)
	for _, u := range users {
		if err := profiles.Create(ctx, &userdomain.Profile{ID: u.id, Name: u.name, Email: u.email, OnboardingCompleted: true}); err != nil {
			log.Fatalf("create profile %s: %v", u.email, err)
		}
		if err := roles.Create(ctx, u.id, u.role); err != nil {
			log.Fatalf("assign role %s: %v", u.email, err)
		}
	}

	apps := apprepo.NewStoreRepository(store, roleservice.NewService(roles, profiles, nil), appdomain.PolicySinglePending)
	approved, err := apps.Submit(ctx, "seed-owner-001", sampleFields("Omar's Fitness Co", "owner@example.com"))
	if err != nil {
		log.Fatalf("submit owner application: %v", err)
	}
	if err := apps.SetStatus(ctx, approved.ID, appdomain.StatusApproved, "seed-admin-001"); err != nil {
		log.Fatalf("approve owner application: %v", err)
	}
	if _, err := roles.Update(ctx, "seed-owner-001", roledomain.RoleOwner); err != nil {
		log.Fatalf("promote owner: %v", err)
	}
	if _, err := apps.Submit(ctx, "seed-applicant-001", sampleFields("Priya Strength Lab", "applicant@example.com")); err != nil {
		log.Fatalf("submit pending application: %v", err)
	}

	gymRepo := gymrepo.NewStoreRepository(store)
	for _, s := range gyms {
		g := s.gym
		g.OwnerID = "seed-owner-001"
		if err := gymRepo.CreateGym(ctx, &g); err != nil {
			log.Fatalf("create gym %s: %v", g.Name, err)
		}
		for _, sp := range s.plans {
			p := &gymdomain.Plan{
				GymID:        g.ID,
				Name:         sp.name,
				DurationDays: sp.days,
				Price:        decimal.RequireFromString(sp.price),
				IsActive:     true,
				Badge:        sp.badge,
			}
			if sp.discounted != "" {
				d := decimal.RequireFromString(sp.discounted)
				p.DiscountedPrice = &d
			}
			if err := gymRepo.CreatePlan(ctx, p); err != nil {
				log.Fatalf("create plan %s/%s: %v", g.Name, sp.name, err)
			}
		}
	}

	log.Println("Seed completed successfully.")
	for _, u := range users {
		log.Printf("  %-8s %s (%s)", u.role, u.email, u.id)
	}
}

func sampleFields(business, email string) appdomain.Fields {
	return appdomain.Fields{
		BusinessName:      business,
		BusinessAddress:   "221 Market Street, Suite 4",
		BusinessPhone:     "+1 555 010 2030",
		BusinessEmail:     email,
		YearsInBusiness:   3,
		NumberOfLocations: 1,
		Description:       "Independent strength and conditioning gym serving the neighbourhood since opening day.",
		TermsAccepted:     true,
	}
}

func openStore(cfg *config.Config) (backend.Store, func()) {
	switch cfg.BackendDriver {
	case config.DriverPostgres:
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		return postgres.NewStore(conn), func() { _ = conn.Close() }
	case config.DriverSupabase:
		client, err := supabase.New(supabase.Config{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseServiceKey})
		if err != nil {
			log.Fatalf("supabase: %v", err)
		}
		return supabase.NewStore(client), func() {}
	default:
		log.Fatalf("seed needs a persistent backend; BACKEND_DRIVER=%s", cfg.BackendDriver)
		return nil, nil
	}
}
