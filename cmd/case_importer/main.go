package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	caseserver "github.com/Ashenafi-pixel/gamecrafter-case-server"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/cases"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/ledger"
	"github.com/Ashenafi-pixel/gamecrafter-case-server/store/pgstore"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

// A cases file is a JSON array of cases:
//
//	[
//	  {
//	    "id": "starter",
//	    "name": "Starter Case",
//	    "price": "3.00",
//	    "active": true,
//	    "prizes": [
//	      {"id": "knife", "name": "Knife", "value": "30.00", "weight": 1, "payable": true, "active": true},
//	      {"id": "sticker", "name": "Sticker", "value": "0", "payable": false, "active": true}
//	    ]
//	  }
//	]
//
// An accounts file is a JSON array of ledger accounts, see data/accounts.json.

func main() {
	casesPath := flag.String("cases", "", "Path to a cases JSON file")
	accountsPath := flag.String("accounts", "", "Optional path to an accounts JSON file to seed")
	catalogDir := flag.String("catalog-dir", "", "Also register the cases in the file catalog under this directory")
	flag.Parse()

	if *casesPath == "" && *accountsPath == "" {
		fmt.Fprintln(os.Stderr, "missing required -cases or -accounts argument")
		os.Exit(1)
	}

	_ = godotenv.Load(".env")
	if err := run(context.Background(), *casesPath, *accountsPath, *catalogDir); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, casesPath, accountsPath, catalogDir string) error {
	var list []*cases.Case
	if casesPath != "" {
		var err error
		if list, err = cases.LoadFile(casesPath); err != nil {
			return err
		}
		if err := validate(list); err != nil {
			return err
		}
	}

	if catalogDir != "" {
		catalog := cases.NewCatalog(catalogDir)
		for _, c := range list {
			if err := catalog.Register(c); err != nil {
				return fmt.Errorf("catalog %s: %w", c.ID, err)
			}
		}
	}

	pool, err := caseserver.Connect(ctx, os.Getenv("DATABASE_URL"), 2)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer pool.Close()
	st := pgstore.New(pool, pgx.ReadCommitted, 1)
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	for _, c := range list {
		if err := st.UpsertCase(ctx, c); err != nil {
			return fmt.Errorf("upsert case %s: %w", c.ID, err)
		}
		fmt.Printf("Imported case %q (id=%s, %d prizes)\n", c.Name, c.ID, len(c.Prizes))
	}

	if accountsPath != "" {
		accounts, err := ledger.LoadAccountsFile(accountsPath)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			if err := st.UpsertAccount(ctx, a); err != nil {
				return fmt.Errorf("upsert account %s: %w", a.ID, err)
			}
		}
		fmt.Printf("Seeded %d accounts\n", len(accounts))
	}
	return nil
}

func validate(list []*cases.Case) error {
	for _, c := range list {
		if c == nil || c.ID == "" {
			return fmt.Errorf("every case needs an id")
		}
		if !c.Price.IsPositive() {
			return fmt.Errorf("case %s: price must be positive", c.ID)
		}
		seen := make(map[string]bool, len(c.Prizes))
		for _, p := range c.Prizes {
			if p.ID == "" || seen[p.ID] {
				return fmt.Errorf("case %s: prize ids must be unique and non-empty", c.ID)
			}
			seen[p.ID] = true
			if p.Value.IsNegative() || p.Weight.IsNegative() {
				return fmt.Errorf("case %s prize %s: value and weight must not be negative", c.ID, p.ID)
			}
		}
	}
	return nil
}
