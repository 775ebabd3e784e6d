// Command seed fills a development database with sample data.
package main

import (
	"context"
	"flag"
	"log"

	"community/internal/config"
	"community/internal/database"
	"community/internal/repository"
	"community/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	members := flag.Int("members", defaults.Members, "Number of members to create")
	posts := flag.Int("posts", defaults.Posts, "Number of posts to create")
	withdrawn := flag.Int("withdrawn", defaults.Withdrawn, "Members to withdraw after seeding")
	deleted := flag.Int("deleted-posts", defaults.DeletedPosts, "Posts to delete through the cascade")
	fast := flag.Bool("fast", false, "Use a cheap password hash")
	seedValue := flag.Int64("seed", 0, "Random seed (0 uses the clock)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := defaults
	opts.Members = *members
	opts.Posts = *posts
	opts.Withdrawn = *withdrawn
	opts.DeletedPosts = *deleted
	opts.SkipBcrypt = *fast
	opts.Seed = *seedValue

	f, err := seed.NewFactory(repository.NewStore(db), opts)
	if err != nil {
		log.Fatalf("Seeder init failed: %v", err)
	}
	sum, err := f.Run(context.Background())
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d members, %d posts, %d comments, %d likes (password %q)",
		sum.Members, sum.Posts, sum.Comments, sum.Likes, seed.DefaultPassword)
}
