package dnsname

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "mydb", false},
		{"with hyphen", "my-db", false},
		{"with digits", "db42", false},
		{"digit start", "1db", false},
		{"empty", "", true},
		{"uppercase", "MyDB", true},
		{"leading hyphen", "-mydb", true},
		{"trailing hyphen", "mydb-", true},
		{"underscore", "my_db", true},
		{"space", "my db", true},
		{"dot", "my.db", true},
		{"too long", strings.Repeat("a", 64), true},
		{"max length", strings.Repeat("a", 63), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"already clean", "mydb", "mydb"},
		{"uppercase", "MyDB", "mydb"},
		{"underscores", "my_db_server", "my-db-server"},
		{"mixed junk", "My_DB Server!", "my-db-server"},
		{"leading junk", "__mydb", "mydb"},
		{"trailing junk", "mydb!!", "mydb"},
		{"collapsed runs", "a___b", "a-b"},
		{"all junk", "***", ""},
		{"unicode", "café-db", "caf-db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			assert.Equal(t, tt.want, got)
			if got != "" {
				assert.NoError(t, Validate(got))
			}
		})
	}
}

func TestSanitizeTruncates(t *testing.T) {
	long := strings.Repeat("ab-", 40)
	got := Sanitize(long)
	assert.LessOrEqual(t, len(got), MaxLabelLength)
	assert.NoError(t, Validate(got))
}

func TestUnique(t *testing.T) {
	a := Unique("mydb")
	b := Unique("mydb")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "mydb-"))
	require.NoError(t, Validate(a))

	// suffix is always 8 characters
	assert.Len(t, a, len("mydb")+1+8)
}

func TestUniqueLongBase(t *testing.T) {
	got := Unique(strings.Repeat("a", 80))
	assert.LessOrEqual(t, len(got), MaxLabelLength)
	assert.NoError(t, Validate(got))
}

func TestFQDN(t *testing.T) {
	assert.Equal(t, "mydb.westus3.cloudapp.azure.com", FQDN("mydb", "westus3"))
	assert.Equal(t, "mydb.eastus.cloudapp.azure.com", FQDN("mydb", "eastus"))

	// empty region falls back to the default
	assert.Equal(t, "mydb.westus3.cloudapp.azure.com", FQDN("mydb", ""))
}
