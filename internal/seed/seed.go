// Package seed loads users and their products from JSON seed files.
package seed

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/market-orders/internal/domain/auth"
	"github.com/xenking/market-orders/internal/domain/product"
	"github.com/xenking/market-orders/internal/domain/user"
)

// File is the seed file layout.
type File struct {
	Users []User `json:"users"`
}

// User is a seeded account. Token is stored only as its hash.
type User struct {
	Email    string    `json:"email"`
	Token    string    `json:"token"`
	Products []Product `json:"products"`
}

// Product is a seeded catalog entry owned by the enclosing user.
type Product struct {
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
}

// Result counts what Apply wrote.
type Result struct {
	Users    int
	Products int
	Skipped  int
}

// Decode reads a seed file. Gzip-compressed input is detected by name.
func Decode(r io.Reader, name string) (*File, error) {
	if strings.HasSuffix(name, ".gz") {
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	var f File
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	for i, u := range f.Users {
		if u.Email == "" {
			return errors.Errorf("user %d: email is required", i)
		}
		if u.Token == "" {
			return errors.Errorf("user %s: token is required", u.Email)
		}
		for _, p := range u.Products {
			if p.Title == "" {
				return errors.Errorf("user %s: product title is required", u.Email)
			}
			if p.Price.IsNegative() {
				return errors.Errorf("user %s: product %q has a negative price", u.Email, p.Title)
			}
		}
	}
	return nil
}

// LoadFiles reads and decodes all paths concurrently, keeping their order.
func LoadFiles(ctx context.Context, paths []string) ([]*File, error) {
	files := make([]*File, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fh, err := os.Open(path)
			if err != nil {
				return errors.Wrap(err, "open seed file")
			}
			defer func() { _ = fh.Close() }()

			f, err := Decode(fh, path)
			if err != nil {
				return errors.Wrapf(err, "load %s", path)
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// Seeder writes seed files through the repositories.
type Seeder struct {
	users    user.Repository
	products product.Repository
	pepper   []byte
	lg       *zap.Logger
}

// NewSeeder creates a Seeder. Tokens are hashed with pepper, the same way the
// API hashes incoming tokens.
func NewSeeder(lg *zap.Logger, users user.Repository, products product.Repository, pepper []byte) *Seeder {
	return &Seeder{users: users, products: products, pepper: pepper, lg: lg}
}

// Apply upserts every user by email and inserts their products. A product the
// user already has under the same title is skipped, so Apply can be re-run.
func (s *Seeder) Apply(ctx context.Context, f *File) (Result, error) {
	var res Result

	existing, err := s.products.List(ctx)
	if err != nil {
		return res, errors.Wrap(err, "list products")
	}
	type key struct {
		userID int64
		title  string
	}
	have := make(map[key]struct{}, len(existing))
	for _, p := range existing {
		have[key{p.UserID, p.Title}] = struct{}{}
	}

	for _, su := range f.Users {
		u := &user.User{Email: su.Email, TokenHash: auth.HashToken(s.pepper, su.Token)}
		if err := s.users.Create(ctx, u); err != nil {
			return res, errors.Wrapf(err, "upsert user %s", su.Email)
		}
		res.Users++
		s.lg.Info("Upserted user", zap.String("email", u.Email), zap.Int64("id", u.ID))

		for _, sp := range su.Products {
			k := key{u.ID, sp.Title}
			if _, ok := have[k]; ok {
				res.Skipped++
				continue
			}
			p := &product.Product{UserID: u.ID, Title: sp.Title, Price: sp.Price}
			if err := s.products.Create(ctx, p); err != nil {
				return res, errors.Wrapf(err, "create product %q", sp.Title)
			}
			have[k] = struct{}{}
			res.Products++
		}
	}
	return res, nil
}
