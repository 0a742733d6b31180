/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/anvil/database"
	"github.com/tomoncle/anvil/types"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	Email     string    `bun:"email,notnull,unique"`
	Status    string    `bun:"status,notnull"`
	Age       int       `bun:"age"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`

	Profile *Profile `bun:"rel:has-one,join:id=user_id"`
	Posts   []*Post  `bun:"rel:has-many,join:id=user_id"`
	Tags    []*Tag   `bun:"m2m:user_tags,join:User=Tag"`

	PostsCount int `bun:"posts_count,scanonly"`
}

type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:pr"`

	ID     int64  `bun:"id,pk,autoincrement"`
	UserID int64  `bun:"user_id,notnull"`
	Bio    string `bun:"bio"`
}

type Post struct {
	bun.BaseModel `bun:"table:posts,alias:p"`

	ID        int64  `bun:"id,pk,autoincrement"`
	UserID    int64  `bun:"user_id,notnull"`
	Title     string `bun:"title,notnull"`
	Published bool   `bun:"published,notnull"`
}

type Tag struct {
	bun.BaseModel `bun:"table:tags,alias:t"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`
}

type UserTag struct {
	bun.BaseModel `bun:"table:user_tags,alias:ut"`

	UserID int64 `bun:"user_id,pk"`
	User   *User `bun:"rel:belongs-to,join:user_id=id"`
	TagID  int64 `bun:"tag_id,pk"`
	Tag    *Tag  `bun:"rel:belongs-to,join:tag_id=id"`
}

type recorder[T any] struct {
	events []Event[T]
	err    error
}

func (r *recorder[T]) Dispatch(_ context.Context, event Event[T]) error {
	r.events = append(r.events, event)
	return r.err
}

func openDB(t *testing.T) *bun.DB {
	t.Helper()
	cfg := database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.MaxOpenConns = 1

	manager := database.NewDatabaseManager(cfg)
	manager.SetLogger(database.NopLogger{})
	require.NoError(t, manager.Connect(context.Background()))
	t.Cleanup(func() { _ = manager.Disconnect() })

	db := manager.GetDB()
	db.RegisterModel((*UserTag)(nil))
	require.NoError(t, database.CreateTables(context.Background(), db,
		(*User)(nil), (*Profile)(nil), (*Post)(nil), (*Tag)(nil), (*UserTag)(nil)))
	return db
}

func seedUsers(t *testing.T, repo Repository[User]) []*User {
	t.Helper()
	rows := []types.Attributes{
		{"name": "alice", "email": "alice@example.com", "status": "active", "age": 30},
		{"name": "bob", "email": "bob@example.com", "status": "active", "age": 17},
		{"name": "carol", "email": "carol@example.com", "status": "inactive", "age": 45},
		{"name": "dave", "email": "dave@example.com", "status": "active", "age": 19},
	}
	users := make([]*User, 0, len(rows))
	for _, attrs := range rows {
		u, err := repo.Create(context.Background(), attrs)
		require.NoError(t, err)
		users = append(users, u)
	}
	return users
}

func seedPosts(t *testing.T, db bun.IDB, alice, dave *User) {
	t.Helper()
	posts := MustNew[Post](db)
	for _, attrs := range []types.Attributes{
		{"user_id": alice.ID, "title": "hello", "published": true},
		{"user_id": alice.ID, "title": "draft", "published": false},
		{"user_id": dave.ID, "title": "notes", "published": false},
	} {
		_, err := posts.Create(context.Background(), attrs)
		require.NoError(t, err)
	}
}

func names(users []*User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Name
	}
	return out
}

func TestNewRejectsInvalidModels(t *testing.T) {
	db := openDB(t)

	_, err := New[int](db)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = New[UserTag](db)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "found 2")

	_, err = New[User](nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.Panics(t, func() { MustNew[string](db) })

	repo, err := New[User](db)
	require.NoError(t, err)
	assert.Equal(t, "users", repo.TableName())
	assert.NoError(t, repo.ResetModel())
}

func TestCreateDispatchesCreatedOnce(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)

	u, err := repo.Create(ctx, types.Attributes{"name": "alice", "email": "a@example.com", "status": "active", "age": 30})
	require.NoError(t, err)
	assert.Nil(t, repo.LastEvent())

	rec := &recorder[User]{}
	repo.SetCreatedHandler(rec)
	assert.Same(t, rec, repo.CreatedHandler())
	v, err := repo.Create(ctx, types.Attributes{"name": "bob", "email": "b@example.com", "status": "active"})
	require.NoError(t, err)

	require.Len(t, rec.events, 1)
	created, ok := rec.events[0].(Created[User])
	require.True(t, ok)
	assert.Equal(t, EventCreated, created.Kind())
	assert.Same(t, v, created.Model)
	assert.Equal(t, repo, created.Source())
	assert.Equal(t, rec.events[0], repo.LastEvent())

	found, err := repo.Find(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Name)
	assert.Equal(t, 30, found.Age)
	assert.False(t, found.UpdatedAt.IsZero())
}

func TestCreateRejectsBadInput(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)

	_, err := repo.Create(ctx, types.Attributes{"nickname": "x"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = repo.Create(ctx, types.Attributes{"posts_count": 3})
	assert.ErrorIs(t, err, ErrValidation)

	attrs := types.Attributes{"name": "alice", "email": "dup@example.com", "status": "active"}
	_, err = repo.Create(ctx, attrs)
	require.NoError(t, err)
	_, err = repo.Create(ctx, attrs)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, database.DuplicateKeyErr, verr.Kind)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestInsertDispatchesCreated(t *testing.T) {
	db := openDB(t)
	rec := &recorder[User]{}
	repo := MustNew[User](db).SetHandlers(rec)

	u, err := repo.Insert(context.Background(), &User{Name: "erin", Email: "erin@example.com", Status: "active"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventCreated, rec.events[0].Kind())

	_, err = repo.Insert(context.Background(), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateCarriesOriginal(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	users := seedUsers(t, repo)

	rec := &recorder[User]{}
	repo.SetUpdatedHandler(rec)
	updated, err := repo.Update(ctx, types.Attributes{"name": "alicia", "age": int64(31)}, users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "alicia", updated.Name)
	assert.Equal(t, "alice@example.com", updated.Email)

	require.Len(t, rec.events, 1)
	event := rec.events[0].(Updated[User])
	assert.Equal(t, "alicia", event.Model.Name)
	assert.Equal(t, 31, event.Model.Age)
	require.NotNil(t, event.Original)
	assert.Equal(t, "alice", event.Original.Name)
	assert.Equal(t, 30, event.Original.Age)
	assert.False(t, event.Model.UpdatedAt.Before(event.Original.UpdatedAt))

	found, err := repo.Find(ctx, users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "alicia", found.Name)
	assert.Equal(t, "active", found.Status)

	_, err = repo.Update(ctx, types.Attributes{"name": "x"}, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, rec.events, 1)
}

func TestFindMissingDoesNotDispatch(t *testing.T) {
	db := openDB(t)
	rec := &recorder[User]{}
	repo := MustNew[User](db).SetHandlers(rec)

	u, err := repo.Find(context.Background(), 42)
	assert.Nil(t, u)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 42, nf.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Empty(t, rec.events)

	first, err := repo.First(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, first)
}

func TestFindWhere(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	seedUsers(t, repo)

	users, err := repo.FindWhere(ctx, types.WhereMap(map[string]interface{}{
		"status": "active",
		"age":    []interface{}{"age", ">", 18},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "dave"}, names(users))

	users, err = repo.FindWhere(ctx, types.Where{types.Cond("name", "LIKE", "%a%"), types.Cond("age", ">=", 45)})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, names(users))

	_, err = repo.FindWhere(ctx, types.Where{types.Cond("age", "~", 1)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = repo.FindWhere(ctx, types.Where{types.Eq("nickname", "x")})
	assert.ErrorIs(t, err, ErrValidation)

	users, err = repo.FindByField(ctx, "status", "inactive", "id", "name")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].Name)
	assert.Empty(t, users[0].Email)
}

func TestFindWhereInAndNotIn(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	seedUsers(t, repo)

	users, err := repo.FindWhereIn(ctx, "name", []string{"bob", "dave", "zed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "dave"}, names(users))

	users, err = repo.FindWhereNotIn(ctx, "name", []string{"bob", "dave"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, names(users))

	users, err = repo.FindWhereIn(ctx, "name", []string{})
	require.NoError(t, err)
	assert.Empty(t, users)

	users, err = repo.FindWhereNotIn(ctx, "name", []string{})
	require.NoError(t, err)
	assert.Len(t, users, 4)

	_, err = repo.FindWhereIn(ctx, "name", "bob")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPendingContextResetsAfterTerminalCall(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	fresh := MustNew[User](db)
	repo := MustNew[User](db)
	seedUsers(t, repo)

	repo.With("Posts").WithCount("Posts").Hidden("age").Has("Posts").OrderBy("name", types.Descending)
	assert.NotEqual(t, fresh.Query().String(), repo.Query().String())

	_, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh.Query().String(), repo.Query().String())

	repo.With("Nope")
	_, err = repo.All(ctx)
	assert.ErrorIs(t, err, ErrUnknownRelation)
	assert.Equal(t, fresh.Query().String(), repo.Query().String())

	users, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 4)
}

func TestScopePolicy(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	seedUsers(t, repo)

	active := func(q bun.QueryBuilder) bun.QueryBuilder {
		return q.Where("?TableAlias.status = ?", "active")
	}

	users, err := repo.ScopeQuery(active).All(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)
	users, err = repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 4)

	repo.SetScopePolicy(ScopeSticky).ScopeQuery(active)
	users, err = repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = repo.Find(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err = repo.ResetScope().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDelete(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	rec := &recorder[User]{}
	repo := MustNew[User](db)
	users := seedUsers(t, repo)
	repo.SetDeletedHandler(rec)

	n, err := repo.Delete(ctx, users[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, rec.events, 1)
	deleted := rec.events[0].(Deleted[User])
	require.Len(t, deleted.Models, 1)
	assert.Equal(t, "bob", deleted.Models[0].Name)

	_, err = repo.Delete(ctx, users[1].ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, rec.events, 1)
}

func TestDeleteWhere(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	rec := &recorder[User]{}
	repo := MustNew[User](db)
	seedUsers(t, repo)
	repo.SetDeletedHandler(rec)

	n, err := repo.DeleteWhere(ctx, types.Where{types.Eq("status", "active"), types.Cond("age", "<", 20)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.Len(t, rec.events, 1)
	assert.ElementsMatch(t, []string{"bob", "dave"}, names(rec.events[0].(Deleted[User]).Models))

	users, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, names(users))

	n, err = repo.DeleteWhere(ctx, types.Where{types.Eq("status", "banned")})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, rec.events, 1)
}

func TestShapingAppliesBeforeFirst(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	users := seedUsers(t, repo)
	seedPosts(t, db, users[0], users[3])

	u, err := repo.With("Posts").OrderBy("name", types.Descending).First(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "dave", u.Name)
	require.Len(t, u.Posts, 1)
	assert.Equal(t, "notes", u.Posts[0].Title)

	u, err = repo.WithQuery("Posts", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.published = ?", true)
	}).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)
	require.Len(t, u.Posts, 1)
	assert.Equal(t, "hello", u.Posts[0].Title)
}

func TestApplyGetAndScan(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	seedUsers(t, repo)

	users, err := repo.Apply(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.age > ?", 18).Limit(2)
	}).Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, names(users))

	var (
		userNames []string
		ages      []int
	)
	require.NoError(t, repo.Scan(ctx, []string{"name", "age"}, &userNames, &ages))
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, userNames)
	assert.Equal(t, []int{30, 17, 45, 19}, ages)

	err = repo.Scan(ctx, []string{"nope"}, &userNames)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRelationShaping(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	users := seedUsers(t, repo)
	seedPosts(t, db, users[0], users[3])

	counted, err := repo.WithCount("Posts").OrderBy("posts_count", types.Descending).OrderBy("name", types.Ascending).All(ctx)
	require.NoError(t, err)
	require.Len(t, counted, 4)
	assert.Equal(t, []string{"alice", "dave", "bob", "carol"}, names(counted))
	assert.Equal(t, []int{2, 1, 0, 0}, []int{counted[0].PostsCount, counted[1].PostsCount, counted[2].PostsCount, counted[3].PostsCount})

	has, err := repo.Has("Posts").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "dave"}, names(has))

	published, err := repo.WhereHas("Posts", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.published = ?", true)
	}).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names(published))

	_, err = repo.WithCount("Profile").All(ctx)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = repo.Has("Comments").All(ctx)
	assert.ErrorIs(t, err, ErrUnknownRelation)

	profiles := MustNew[Profile](db)
	_, err = profiles.Create(ctx, types.Attributes{"user_id": users[2].ID, "bio": "hi"})
	require.NoError(t, err)
	u, err := repo.With("Profile").Find(ctx, users[2].ID)
	require.NoError(t, err)
	require.NotNil(t, u.Profile)
	assert.Equal(t, "hi", u.Profile.Bio)
}

func TestHiddenAndVisible(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	users := seedUsers(t, repo)

	u, err := repo.Hidden("email").Find(ctx, users[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)
	assert.Empty(t, u.Email)

	u, err = repo.Visible("id", "name").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)
	assert.Empty(t, u.Status)

	_, err = repo.Hidden("password").All(ctx)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWritesIgnoreProjection(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	rec := &recorder[User]{}
	repo := MustNew[User](db)
	users := seedUsers(t, repo)
	alice, bob := users[0], users[1]
	repo.SetHandlers(rec)

	updated, err := repo.Visible("name").Update(ctx, types.Attributes{"name": "ALICE"}, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, updated.ID)
	found, err := repo.Find(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "ALICE", found.Name)
	assert.Equal(t, "alice@example.com", found.Email)

	updated, err = repo.Hidden("id").UpdateOrCreate(ctx, types.Attributes{"name": "ALICE"}, types.Attributes{"age": 31})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, updated.ID)
	found, err = repo.Find(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, found.Age)

	n, err := repo.Visible("name").Delete(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = repo.Find(ctx, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err = repo.Hidden("id").DeleteWhere(ctx, types.Where{types.Eq("status", "active")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	left, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, names(left))

	require.Len(t, rec.events, 4)
	deleted := rec.events[3].(Deleted[User])
	assert.ElementsMatch(t, []string{"ALICE", "dave"}, names(deleted.Models))

	tag, err := MustNew[Tag](db).Create(ctx, types.Attributes{"name": "go"})
	require.NoError(t, err)
	carol := users[2]
	_, err = repo.Visible("name").Sync(ctx, carol.ID, "Tags", []interface{}{tag.ID}, true)
	require.NoError(t, err)
	var pivots []UserTag
	require.NoError(t, db.NewSelect().Model(&pivots).Scan(ctx))
	require.Len(t, pivots, 1)
	assert.Equal(t, carol.ID, pivots[0].UserID)
}

func TestFindWhereRejectsMalformedTuple(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	seedUsers(t, repo)

	_, err := repo.FindWhere(ctx, types.WhereMap(map[string]interface{}{
		"age": []interface{}{"age", ">"},
	}))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "age", verr.Field)
	assert.ErrorIs(t, err, types.ErrMalformedCondition)

	n, err := repo.DeleteWhere(ctx, types.WhereMap(map[string]interface{}{
		"status": []interface{}{7, "=", "active"},
	}))
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, n)
	users, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 4)
}

func TestPaginate(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	for i := 0; i < 20; i++ {
		_, err := repo.Create(ctx, types.Attributes{
			"name":   fmt.Sprintf("user%02d", i),
			"email":  fmt.Sprintf("user%02d@example.com", i),
			"status": "active",
		})
		require.NoError(t, err)
	}

	page, err := repo.Paginate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, types.DefaultPageSize, page.PageSize)
	assert.Equal(t, 20, page.Total)
	assert.Len(t, page.Items, 15)
	assert.Equal(t, 2, page.LastPage())

	page, err = repo.Paginate(ctx, types.NewPageRequest(2, 0), "id", "name")
	require.NoError(t, err)
	require.Len(t, page.Items, 5)
	assert.Equal(t, "user15", page.Items[0].Name)

	simple, err := repo.SimplePaginate(ctx, types.NewPageRequest(1, 15))
	require.NoError(t, err)
	assert.True(t, simple.HasMore)
	assert.Len(t, simple.Items, 15)

	simple, err = repo.SimplePaginate(ctx, types.NewPageRequest(2, 15))
	require.NoError(t, err)
	assert.False(t, simple.HasMore)
	assert.Len(t, simple.Items, 5)

	empty, err := repo.ScopeQuery(func(q bun.QueryBuilder) bun.QueryBuilder {
		return q.Where("?TableAlias.status = ?", "gone")
	}).Paginate(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Items)
}

func TestFirstOrNewAndFirstOrCreate(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	rec := &recorder[User]{}
	repo := MustNew[User](db).SetHandlers(rec)
	seedUsers(t, repo)
	rec.events = nil

	u, err := repo.FirstOrNew(ctx, types.Attributes{"email": "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Name)

	u, err = repo.FirstOrNew(ctx, types.Attributes{"email": "new@example.com", "name": "new", "status": "active"})
	require.NoError(t, err)
	assert.Zero(t, u.ID)
	assert.Equal(t, "new", u.Name)

	u, err = repo.FirstOrCreate(ctx, types.Attributes{"email": "new@example.com", "name": "new", "status": "active"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)

	again, err := repo.FirstOrCreate(ctx, types.Attributes{"email": "new@example.com", "name": "new", "status": "active"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Empty(t, rec.events)
}

func TestUpdateOrCreate(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	rec := &recorder[User]{}
	repo := MustNew[User](db)
	seedUsers(t, repo)
	repo.SetUpdatedHandler(rec)

	u, err := repo.UpdateOrCreate(ctx, types.Attributes{"email": "bob@example.com"}, types.Attributes{"age": 18})
	require.NoError(t, err)
	assert.Equal(t, 18, u.Age)
	require.Len(t, rec.events, 1)
	event := rec.events[0].(Updated[User])
	require.NotNil(t, event.Original)
	assert.Equal(t, 17, event.Original.Age)

	u, err = repo.UpdateOrCreate(ctx,
		types.Attributes{"email": "zoe@example.com"},
		types.Attributes{"name": "zoe", "status": "active"},
	)
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "zoe@example.com", u.Email)
	require.Len(t, rec.events, 2)
	assert.Nil(t, rec.events[1].(Updated[User]).Original)
}

func TestSync(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	users := seedUsers(t, repo)
	alice := users[0]

	tags := MustNew[Tag](db)
	var ids []int64
	for _, name := range []string{"go", "sql", "orm"} {
		tag, err := tags.Create(ctx, types.Attributes{"name": name})
		require.NoError(t, err)
		ids = append(ids, tag.ID)
	}

	res, err := repo.Sync(ctx, alice.ID, "Tags", []interface{}{ids[0], ids[1], ids[1]}, true)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{ids[0], ids[1]}, res.Attached)
	assert.Empty(t, res.Detached)

	res, err = repo.Sync(ctx, alice.ID, "Tags", []interface{}{ids[1], ids[2]}, true)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{ids[2]}, res.Attached)
	assert.Equal(t, []interface{}{ids[0]}, res.Detached)

	res, err = repo.SyncWithoutDetaching(ctx, alice.ID, "Tags", []interface{}{ids[0]})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{ids[0]}, res.Attached)
	assert.Empty(t, res.Detached)

	u, err := repo.With("Tags").Find(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, u.Tags, 3)

	tagged, err := repo.Has("Tags").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names(tagged))

	_, err = repo.Sync(ctx, alice.ID, "Posts", nil, true)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = repo.Sync(ctx, alice.ID, "Groups", nil, true)
	assert.ErrorIs(t, err, ErrUnknownRelation)
	_, err = repo.Sync(ctx, 999, "Tags", nil, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPluck(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	users := seedUsers(t, repo)

	emails, err := Pluck[string](ctx, repo.OrderBy("name", types.Descending), "email")
	require.NoError(t, err)
	assert.Equal(t, []string{"dave@example.com", "carol@example.com", "bob@example.com", "alice@example.com"}, emails)

	byID, err := PluckMap[int64, string](ctx, repo, "name", "id")
	require.NoError(t, err)
	assert.Len(t, byID, 4)
	assert.Equal(t, "carol", byID[users[2].ID])

	_, err = Pluck[string](ctx, repo, "password")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWithTxRollsBack(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	repo := MustNew[User](db)
	rollback := errors.New("rollback")

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		txRepo := repo.WithTx(tx)
		assert.Equal(t, tx, txRepo.DB())
		if _, err := txRepo.Create(ctx, types.Attributes{"name": "tx", "email": "tx@example.com", "status": "active"}); err != nil {
			return err
		}
		n, err := txRepo.Count(ctx)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, n)
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandlerErrorPropagatesAfterWrite(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	down := errors.New("broker down")
	repo := MustNew[User](db).SetCreatedHandler(EventHandlerFunc[User](func(context.Context, Event[User]) error {
		return down
	}))

	u, err := repo.Create(ctx, types.Attributes{"name": "alice", "email": "a@example.com", "status": "active"})
	assert.ErrorIs(t, err, down)
	require.NotNil(t, u)

	found, err := repo.Find(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Name)
}

func TestEventKind(t *testing.T) {
	assert.Equal(t, "created", EventCreated.String())
	assert.Equal(t, "deleted", EventDeleted.Name())
	assert.Equal(t, types.IllegalName, EventKind(9).String())
	assert.Equal(t, types.IllegalValue, EventKind(9).Number())
	assert.True(t, EventUpdated.IsValid())
}

func TestCountColumn(t *testing.T) {
	assert.Equal(t, "posts_count", countColumn("Posts"))
	assert.Equal(t, "blog_posts_count", countColumn("BlogPosts"))
	assert.Equal(t, "url_links_count", countColumn("URLLinks"))
}
