package db

import (
	"io/fs"
	"regexp"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/stokaro/ptah/migration/migrator"
)

func TestEmbeddedMigrations(t *testing.T) {
	c := qt.New(t)

	provider, err := migrator.NewFSMigrationProvider(Migrations())
	c.Assert(err, qt.IsNil)

	migrations := provider.Migrations()
	c.Assert(migrations, qt.HasLen, 1)
	c.Assert(migrations[0].Version, qt.Equals, 1)
	c.Assert(migrations[0].Description, qt.Equals, "Init")
}

func TestMigrationFileNames(t *testing.T) {
	c := qt.New(t)

	names, err := fs.Glob(Migrations(), "*.sql")
	c.Assert(err, qt.IsNil)
	c.Assert(names, qt.DeepEquals, []string{"0000000001_init.down.sql", "0000000001_init.up.sql"})

	for _, name := range names {
		f, err := migrator.ParseMigrationFileName(name)
		c.Assert(err, qt.IsNil, qt.Commentf("%s", name))
		c.Assert(f.Version, qt.Equals, 1)
	}
}

var (
	createTableRe = regexp.MustCompile(`(?m)^CREATE TABLE (\w+)`)
	dropTableRe   = regexp.MustCompile(`(?m)^DROP TABLE IF EXISTS (\w+);`)
)

func TestDownMigrationDropsInReverse(t *testing.T) {
	c := qt.New(t)

	up, err := fs.ReadFile(Migrations(), "0000000001_init.up.sql")
	c.Assert(err, qt.IsNil)
	down, err := fs.ReadFile(Migrations(), "0000000001_init.down.sql")
	c.Assert(err, qt.IsNil)

	var created []string
	for _, m := range createTableRe.FindAllStringSubmatch(string(up), -1) {
		created = append(created, m[1])
	}
	var dropped []string
	for _, m := range dropTableRe.FindAllStringSubmatch(string(down), -1) {
		dropped = append(dropped, m[1])
	}

	c.Assert(created, qt.HasLen, 6)
	c.Assert(len(dropped), qt.Equals, len(created))
	for i, table := range created {
		c.Assert(dropped[len(dropped)-1-i], qt.Equals, table)
	}
}
