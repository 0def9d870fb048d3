package main

import (
	"fmt"
	"os"
	"strings"

	"library-circulation/circulation"
)

type seedTitle struct {
	key, name, author string
	year              int
}

var titles = []seedTitle{
	{"ISBN-0451524934", "1984", "George Orwell", 1949},
	{"ISBN-0452284244", "Animal Farm", "George Orwell", 1945},
	{"ISBN-0618640150", "The Fellowship of the Ring", "J.R.R. Tolkien", 1954},
	{"ISBN-0618640157", "The Two Towers", "J.R.R. Tolkien", 1954},
	{"ISBN-0618640223", "The Return of the King", "J.R.R. Tolkien", 1955},
	{"ISBN-0743477111", "Romeo and Juliet", "William Shakespeare", 1597},
	{"ISBN-0140449268", "The Three Musketeers", "Alexandre Dumas", 1844},
	{"ISBN-1599869772", "The Art of War", "Sun Tzu", 0},
}

type seedMember struct {
	name, email string
	class       circulation.MemberClass
}

var members = []seedMember{
	{"Alice Chen", "alice@example.org", circulation.ClassStudent},
	{"Bob Okafor", "bob@example.org", circulation.ClassFaculty},
	{"Carol Diaz", "carol@example.org", circulation.ClassStaff},
	{"Dan Petrov", "dan@example.org", circulation.ClassGeneral},
}

func main() {
	cfg, err := circulation.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Start from a clean database.
	fmt.Println("Cleaning up existing database files...")
	dbFiles := []string{cfg.DBPath, cfg.DBPath + "-shm", cfg.DBPath + "-wal"}
	for _, file := range dbFiles {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			fmt.Printf("Warning: could not remove %s: %v\n", file, err)
		}
	}

	manager, err := circulation.NewManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating database: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	fmt.Printf("Seeding catalog at %s...\n", cfg.DBPath)
	for _, t := range titles {
		if _, err := manager.AddTitle(t.key, t.name, t.author, t.year); err != nil {
			fmt.Printf("  skip %q: %v\n", t.name, err)
			continue
		}
		fmt.Printf("  added %q by %s\n", t.name, t.author)
	}

	fmt.Println("Seeding members (initial password is the member's first name, lowercased)...")
	for _, sm := range members {
		password := strings.ToLower(strings.Fields(sm.name)[0])
		m, err := manager.AddMember(sm.name, sm.email, sm.class, password)
		if err != nil {
			fmt.Printf("  skip %q: %v\n", sm.name, err)
			continue
		}
		fmt.Printf("  added %s as %s (class %s)\n", m.Name, m.Key, m.Class)
	}

	fmt.Println("Seed complete.")
}
