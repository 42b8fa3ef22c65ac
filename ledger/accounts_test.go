package ledger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAccountsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	data := `[{"id":"p1","class":"demo","balance_real":"0","balance_demo":"250.50","active":true}]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	accounts, err := LoadAccountsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 || accounts[0].Class != ClassDemo || accounts[0].BalanceDemo.String() != "250.5" || !accounts[0].Active {
		t.Errorf("got %+v", accounts)
	}

	if err := os.WriteFile(path, []byte(`[{"class":"standard"}]`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAccountsFile(path); err == nil {
		t.Error("account without id accepted")
	}
	if _, err := LoadAccountsFile(filepath.Join(dir, "missing.json")); !os.IsNotExist(err) {
		t.Errorf("missing file: %v", err)
	}
}
