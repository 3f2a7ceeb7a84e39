package conn

import "testing"

func TestOptionDSN(t *testing.T) {
	testCases := []struct {
		desc string
		opt  Option
		want string
	}{
		{
			"defaults",
			Option{},
			"postgres://localhost:5432?sslmode=disable",
		},
		{
			"full",
			Option{Host: "db", Port: 6432, User: "loader", Password: "p@ss", Database: "equity", SSLMode: "require"},
			"postgres://loader:p%40ss@db:6432/equity?sslmode=require",
		},
		{
			"conn string wins",
			Option{Host: "ignored", ConnString: "postgres://x/y"},
			"postgres://x/y",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := tc.opt.DSN()
			if err != nil {
				t.Fatalf("dsn: %v", err)
			}
			if got != tc.want {
				t.Fatalf("dsn mismatch! should be %s but got %s", tc.want, got)
			}
		})
	}
}
