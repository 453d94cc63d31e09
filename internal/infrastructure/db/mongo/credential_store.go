package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/storefront/identity-api/internal/core/domain"
)

const (
	identitiesCollection = "identities"
	rolesCollection      = "roles"
)

// TokenStore abstracts the single-use token store (Redis). Issue creates a
// fresh token bound to (purpose, identity); Consume spends it exactly once.
type TokenStore interface {
	Issue(ctx context.Context, purpose domain.TokenPurpose, identityID string) (string, error)
	Consume(ctx context.Context, purpose domain.TokenPurpose, identityID, token string) error
}

// CredentialStore persists identities and role membership in MongoDB and
// delegates single-use tokens to a TokenStore. Uniqueness of username and
// email is enforced by unique indexes, so concurrent registrations race
// safely: the loser gets a duplicate-key error mapped to the same conflict
// error as the pre-check.
type CredentialStore struct {
	identities *mongo.Collection
	roles      *mongo.Collection
	tokens     TokenStore
}

func NewCredentialStore(db *mongo.Database, tokens TokenStore) *CredentialStore {
	return &CredentialStore{
		identities: db.Collection(identitiesCollection),
		roles:      db.Collection(rolesCollection),
		tokens:     tokens,
	}
}

type identityDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Username       string             `bson:"username"`
	Email          string             `bson:"email"`
	LoweredEmail   string             `bson:"lowered_email"`
	DisplayName    string             `bson:"display_name,omitempty"`
	PasswordHash   string             `bson:"password_hash"`
	EmailConfirmed bool               `bson:"email_confirmed"`
	Roles          []string           `bson:"roles"`
	CreatedAt      int64              `bson:"created_at"`
	UpdatedAt      int64              `bson:"updated_at"`
}

type roleDoc struct {
	Name      string `bson:"name"`
	CreatedAt int64  `bson:"created_at"`
}

// EnsureIndexes creates the unique constraints backing the duplicate checks.
// Email uniqueness is case-insensitive via the stored lowered form.
func (s *CredentialStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.identities.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_username"),
		},
		{
			Keys:    bson.D{{Key: "lowered_email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_lowered_email"),
		},
	})
	if err != nil {
		return fmt.Errorf("create identity indexes: %w", err)
	}

	_, err = s.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_role_name"),
	})
	if err != nil {
		return fmt.Errorf("create role index: %w", err)
	}
	return nil
}

// EnsureRoles provisions the closed role set. Idempotent: roles are upserted
// by name and never removed at runtime.
func (s *CredentialStore) EnsureRoles(ctx context.Context, names ...string) error {
	for _, name := range names {
		_, err := s.roles.UpdateOne(ctx,
			bson.M{"name": name},
			bson.M{"$setOnInsert": roleDoc{Name: name, CreatedAt: time.Now().Unix()}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("provision role %q: %w", name, err)
		}
	}
	return nil
}

func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{"lowered_email": strings.ToLower(email)})
}

func (s *CredentialStore) findOne(ctx context.Context, filter bson.M) (*domain.Identity, error) {
	var doc identityDoc
	if err := s.identities.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return docToIdentity(&doc), nil
}

func (s *CredentialStore) CreateIdentity(ctx context.Context, identity *domain.Identity, password string) (*domain.Identity, error) {
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().Unix()
	doc := identityDoc{
		Username:     identity.Username,
		Email:        identity.Email,
		LoweredEmail: strings.ToLower(identity.Email),
		DisplayName:  identity.DisplayName,
		PasswordHash: string(hash),
		Roles:        []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	res, err := s.identities.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, classifyDuplicate(err)
		}
		return nil, fmt.Errorf("insert identity: %w", err)
	}

	doc.ID = res.InsertedID.(primitive.ObjectID)
	return docToIdentity(&doc), nil
}

func (s *CredentialStore) GenerateToken(ctx context.Context, identity *domain.Identity, purpose domain.TokenPurpose) (string, error) {
	return s.tokens.Issue(ctx, purpose, identity.ID)
}

func (s *CredentialStore) ConsumeResetToken(ctx context.Context, identity *domain.Identity, token, newPassword string) error {
	// Policy first: a weak password must not burn a live token.
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if err := s.tokens.Consume(ctx, domain.PurposePasswordReset, identity.ID, token); err != nil {
		return err
	}
	return s.setPassword(ctx, identity.ID, newPassword)
}

func (s *CredentialStore) ConsumeConfirmationToken(ctx context.Context, identity *domain.Identity, token string) error {
	if err := s.tokens.Consume(ctx, domain.PurposeEmailConfirm, identity.ID, token); err != nil {
		return err
	}

	oid, err := primitive.ObjectIDFromHex(identity.ID)
	if err != nil {
		return fmt.Errorf("parse identity id: %w", err)
	}
	_, err = s.identities.UpdateByID(ctx, oid, bson.M{
		"$set": bson.M{"email_confirmed": true, "updated_at": time.Now().Unix()},
	})
	if err != nil {
		return fmt.Errorf("mark email confirmed: %w", err)
	}
	return nil
}

func (s *CredentialStore) VerifyPassword(ctx context.Context, identity *domain.Identity, password string) (bool, error) {
	hash := identity.PasswordHash
	if hash == "" {
		current, err := s.findOne(ctx, bson.M{"username": identity.Username})
		if err != nil {
			return false, err
		}
		hash = current.PasswordHash
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

func (s *CredentialStore) ChangePassword(ctx context.Context, identity *domain.Identity, currentPassword, newPassword string) error {
	ok, err := s.VerifyPassword(ctx, identity, currentPassword)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	return s.setPassword(ctx, identity.ID, newPassword)
}

func (s *CredentialStore) GetRoles(ctx context.Context, identity *domain.Identity) ([]string, error) {
	var doc identityDoc
	oid, err := primitive.ObjectIDFromHex(identity.ID)
	if err != nil {
		return nil, fmt.Errorf("parse identity id: %w", err)
	}
	if err := s.identities.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return doc.Roles, nil
}

func (s *CredentialStore) AddToRole(ctx context.Context, identity *domain.Identity, role string) error {
	// Roles are a closed, provisioned set.
	n, err := s.roles.CountDocuments(ctx, bson.M{"name": role})
	if err != nil {
		return fmt.Errorf("check role: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRole, role)
	}

	oid, err := primitive.ObjectIDFromHex(identity.ID)
	if err != nil {
		return fmt.Errorf("parse identity id: %w", err)
	}
	res, err := s.identities.UpdateByID(ctx, oid, bson.M{
		"$addToSet": bson.M{"roles": role},
		"$set":      bson.M{"updated_at": time.Now().Unix()},
	})
	if err != nil {
		return fmt.Errorf("add to role: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *CredentialStore) setPassword(ctx context.Context, id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("parse identity id: %w", err)
	}
	_, err = s.identities.UpdateByID(ctx, oid, bson.M{
		"$set": bson.M{"password_hash": string(hash), "updated_at": time.Now().Unix()},
	})
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// classifyDuplicate maps a unique-index violation to the matching conflict
// error by inspecting the index name in the server message.
func classifyDuplicate(err error) error {
	if strings.Contains(err.Error(), "uniq_username") {
		return domain.ErrDuplicateUsername
	}
	return domain.ErrDuplicateEmail
}

// validatePassword enforces the account password policy: at least 6
// characters with an uppercase letter, a lowercase letter, and a digit.
func validatePassword(password string) error {
	var reasons []string
	if len(password) < 6 {
		reasons = append(reasons, "must be at least 6 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		reasons = append(reasons, "must contain an uppercase letter")
	}
	if !hasLower {
		reasons = append(reasons, "must contain a lowercase letter")
	}
	if !hasDigit {
		reasons = append(reasons, "must contain a digit")
	}
	if len(reasons) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrPasswordPolicy, strings.Join(reasons, ", "))
	}
	return nil
}

func docToIdentity(doc *identityDoc) *domain.Identity {
	return &domain.Identity{
		ID:             doc.ID.Hex(),
		Username:       doc.Username,
		Email:          doc.Email,
		DisplayName:    doc.DisplayName,
		PasswordHash:   doc.PasswordHash,
		EmailConfirmed: doc.EmailConfirmed,
		Roles:          doc.Roles,
		CreatedAt:      unixToTime(doc.CreatedAt),
		UpdatedAt:      unixToTime(doc.UpdatedAt),
	}
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
