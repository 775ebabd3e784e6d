// Package seed fills a development database with members, posts, comment
// threads and likes, including withdrawn members and deleted posts so every
// tombstone state shows up in the UI.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"community/internal/cascade"
	"community/internal/middleware"
	"community/internal/models"
	"community/internal/repository"
	"community/internal/tombstone"
	"community/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
)

// DefaultPassword is the password of every seeded member.
const DefaultPassword = "Password1!"

// Options controls how much data is generated.
type Options struct {
	Members int
	Posts   int
	// MaxComments is the upper bound of top-level comments per post.
	MaxComments int
	// Withdrawn members are soft deleted after their content is created.
	Withdrawn int
	// DeletedPosts are removed through the cascade after seeding.
	DeletedPosts int
	// Seed makes the generated data reproducible; 0 uses the clock.
	Seed int64
	// SkipBcrypt stores a cheap hash for quick local runs.
	SkipBcrypt bool
}

// DefaultOptions returns a small but complete data set.
func DefaultOptions() Options {
	return Options{
		Members:      12,
		Posts:        30,
		MaxComments:  5,
		Withdrawn:    2,
		DeletedPosts: 3,
	}
}

// Summary counts what a run created.
type Summary struct {
	Members      int
	Posts        int
	Comments     int
	Likes        int
	Withdrawn    int
	DeletedPosts int
}

// Factory builds domain entities and persists them through the store.
type Factory struct {
	store  *repository.Store
	faker  *gofakeit.Faker
	opts   Options
	hash   string
	now    time.Time
	logger *slog.Logger
}

func NewFactory(store *repository.Store, opts Options) (*Factory, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	cost := bcrypt.DefaultCost
	if opts.SkipBcrypt {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash seed password: %w", err)
	}

	return &Factory{
		store:  store,
		faker:  gofakeit.New(seed),
		opts:   opts,
		hash:   string(hash),
		now:    time.Now(),
		logger: middleware.Logger,
	}, nil
}

// Run generates the whole data set.
func (f *Factory) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	members := make([]*models.Member, 0, f.opts.Members)
	for i := 0; i < f.opts.Members; i++ {
		m, err := f.CreateMember(ctx, i)
		if err != nil {
			return sum, fmt.Errorf("create member: %w", err)
		}
		members = append(members, m)
	}
	sum.Members = len(members)
	if len(members) == 0 {
		return sum, nil
	}

	posts := make([]*models.Post, 0, f.opts.Posts)
	for i := 0; i < f.opts.Posts; i++ {
		author := members[f.faker.Number(0, len(members)-1)]
		p, err := f.CreatePost(ctx, author)
		if err != nil {
			return sum, fmt.Errorf("create post: %w", err)
		}
		posts = append(posts, p)

		n, err := f.createThread(ctx, p, members)
		if err != nil {
			return sum, fmt.Errorf("create comments: %w", err)
		}
		sum.Comments += n

		liked, err := f.likePost(ctx, p, members)
		if err != nil {
			return sum, fmt.Errorf("create likes: %w", err)
		}
		sum.Likes += liked
	}
	sum.Posts = len(posts)

	for i := 0; i < f.opts.DeletedPosts && i < len(posts); i++ {
		if _, err := cascade.NewOrchestrator(f.store).DeletePost(ctx, posts[i].ID, f.now); err != nil {
			return sum, fmt.Errorf("delete post %d: %w", posts[i].ID, err)
		}
		sum.DeletedPosts++
	}

	for i := 0; i < f.opts.Withdrawn && i < len(members); i++ {
		m := members[len(members)-1-i]
		if err := tombstone.SoftDeleteMember(m, f.now); err != nil {
			return sum, err
		}
		if err := f.store.Members.SoftDelete(ctx, m); err != nil {
			return sum, fmt.Errorf("withdraw member %d: %w", m.ID, err)
		}
		sum.Withdrawn++
	}

	f.logger.InfoContext(ctx, "seed completed",
		slog.Int("members", sum.Members),
		slog.Int("posts", sum.Posts),
		slog.Int("comments", sum.Comments),
		slog.Int("likes", sum.Likes),
		slog.Int("withdrawn", sum.Withdrawn),
		slog.Int("deleted_posts", sum.DeletedPosts),
	)
	return sum, nil
}

// CreateMember persists a live member. The index keeps nicknames unique.
func (f *Factory) CreateMember(ctx context.Context, index int) (*models.Member, error) {
	m := &models.Member{
		Email:           fmt.Sprintf("%s.%d@example.com", letters(f.faker.FirstName()), index),
		Nickname:        f.nickname(index),
		PasswordHash:    f.hash,
		ProfileImageURL: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.faker.UUID()),
		Active:          true,
	}
	if err := f.store.Members.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// nickname builds a name that passes signup validation.
func (f *Factory) nickname(index int) string {
	suffix := fmt.Sprintf("%d", index)
	base := letters(f.faker.FirstName())
	if limit := validation.NicknameMaxLength - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	return base + suffix
}

// letters keeps the ASCII letters of s, lowercased.
func letters(s string) string {
	return strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, s)
}

func (f *Factory) CreatePost(ctx context.Context, author *models.Member) (*models.Post, error) {
	title := strings.TrimSuffix(f.faker.Sentence(3), ".")
	if r := []rune(title); len(r) > validation.TitleMaxLength {
		title = string(r[:validation.TitleMaxLength])
	}
	p := &models.Post{
		MemberID:  &author.ID,
		Title:     title,
		Content:   f.faker.Paragraph(1, 3, 8, "\n"),
		ViewCount: f.faker.Number(0, 500),
		CreatedAt: f.now.Add(-time.Duration(f.faker.Number(0, 90*24)) * time.Hour),
	}
	if err := f.store.Posts.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// createThread adds top-level comments with a few replies each and keeps the
// post's comment count in step.
func (f *Factory) createThread(ctx context.Context, p *models.Post, members []*models.Member) (int, error) {
	total := 0
	for i := f.faker.Number(0, f.opts.MaxComments); i > 0; i-- {
		root, err := f.createComment(ctx, p, members, nil)
		if err != nil {
			return total, err
		}
		total++
		for j := f.faker.Number(0, 2); j > 0; j-- {
			if _, err := f.createComment(ctx, p, members, &root.ID); err != nil {
				return total, err
			}
			total++
		}
	}
	if total > 0 {
		if _, err := cascade.RecountComments(ctx, f.store, p.ID); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (f *Factory) createComment(ctx context.Context, p *models.Post, members []*models.Member, parentID *uint) (*models.Comment, error) {
	author := members[f.faker.Number(0, len(members)-1)]
	c := &models.Comment{
		PostID:          p.ID,
		MemberID:        &author.ID,
		ParentCommentID: parentID,
		Content:         f.faker.Sentence(f.faker.Number(4, 16)),
	}
	return c, f.store.Comments.Create(ctx, c)
}

func (f *Factory) likePost(ctx context.Context, p *models.Post, members []*models.Member) (int, error) {
	liked := 0
	for _, m := range members {
		if !f.faker.Bool() {
			continue
		}
		l := &models.Like{PostID: p.ID, MemberID: m.ID, DeletionReason: models.LikeDeletionNone}
		if err := f.store.Likes.Create(ctx, l); err != nil {
			return liked, err
		}
		liked++
	}
	return liked, nil
}
