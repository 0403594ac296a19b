package store

import (
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/stretchr/testify/require"
)

func (s *StoreSuite) TestCreateAccountEmailIsCaseInsensitive() {
	t := s.T()
	a, err := CreateAccount(s.ctx, s.db, " Meera ", "Meera@Example.COM ", "123", "hash", models.RoleClient)
	require.NoError(t, err)
	require.Equal(t, "meera@example.com", a.Email)
	require.Equal(t, "Meera", a.Name)

	_, err = CreateAccount(s.ctx, s.db, "Other", "MEERA@example.com", "", "hash", models.RoleClient)
	require.ErrorIs(t, err, database.ErrEmailTaken)

	found, err := GetAccountByEmail(s.ctx, s.db, "meera@EXAMPLE.com")
	require.NoError(t, err)
	require.Equal(t, a.ID, found.ID)

	_, err = GetAccountByEmail(s.ctx, s.db, "nobody@example.com")
	require.ErrorIs(t, err, database.ErrAccountNotFound)
}

func (s *StoreSuite) TestUpdateProfile() {
	t := s.T()
	a := s.newAccount("profile@example.com", models.RoleClient)
	s.newAccount("taken@example.com", models.RoleClient)

	name := "New Name"
	updated, err := UpdateProfile(s.ctx, s.db, a.ID, ProfileUpdate{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "New Name", updated.Name)
	require.Equal(t, a.Email, updated.Email)

	taken := "TAKEN@example.com"
	_, err = UpdateProfile(s.ctx, s.db, a.ID, ProfileUpdate{Email: &taken})
	require.ErrorIs(t, err, database.ErrEmailTaken)

	bad := "not-an-email"
	_, err = UpdateProfile(s.ctx, s.db, a.ID, ProfileUpdate{Email: &bad})
	var verr *database.ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, UpdatePasswordHash(s.ctx, s.db, a.ID, "new-hash"))
	reloaded, err := GetAccount(s.ctx, s.db, a.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", reloaded.PasswordHash)
}

func (s *StoreSuite) TestAdminCannotModifySelf() {
	t := s.T()
	_, err := UpdateRole(s.ctx, s.db, s.admin.ID, s.admin.ID, models.RoleClient)
	require.ErrorIs(t, err, database.ErrSelfModification)
	require.ErrorIs(t, DeleteAccount(s.ctx, s.db, s.admin.ID, s.admin.ID), database.ErrSelfModification)

	other := s.newAccount("other@example.com", models.RoleClient)
	promoted, err := UpdateRole(s.ctx, s.db, s.admin.ID, other.ID, models.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, promoted.Role)

	_, err = UpdateRole(s.ctx, s.db, s.admin.ID, other.ID, "superuser")
	var verr *database.ValidationError
	require.ErrorAs(t, err, &verr)
}

func (s *StoreSuite) TestDeleteAccountKeepsOrders() {
	t := s.T()
	client, _, order := s.orderWith("leaving@example.com", "leave-1", 5, 1)
	_, err := CreateContact(s.ctx, s.db, client.ID, ContactInput{
		Name: "Leaving", Email: client.Email, Subject: "Bye", Message: "Closing my account",
	}, "")
	require.NoError(t, err)

	require.NoError(t, DeleteAccount(s.ctx, s.db, s.admin.ID, client.ID))
	require.ErrorIs(t, DeleteAccount(s.ctx, s.db, s.admin.ID, client.ID), database.ErrAccountNotFound)

	stored, err := GetOrder(s.ctx, s.db, order.OrderNumber)
	require.NoError(t, err)
	require.Nil(t, stored.AccountID)
	require.Nil(t, stored.Customer)
	require.Equal(t, 0, s.countRows(`SELECT COUNT(*) FROM contact_messages`))
}

func (s *StoreSuite) TestPromoteAdmin() {
	t := s.T()
	ok, err := PromoteAdmin(s.ctx, s.db, "missing@example.com")
	require.NoError(t, err)
	require.False(t, ok)

	client := s.newAccount("boss@example.com", models.RoleClient)
	ok, err = PromoteAdmin(s.ctx, s.db, "BOSS@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = PromoteAdmin(s.ctx, s.db, client.Email)
	require.NoError(t, err)
	require.True(t, ok)

	reloaded, err := GetAccount(s.ctx, s.db, client.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, reloaded.Role)
}

func (s *StoreSuite) TestListAccounts() {
	t := s.T()
	s.newAccount("zara@example.com", models.RoleClient)
	s.newAccount("yusuf@example.com", models.RoleClient)

	page, err := ListAccounts(s.ctx, s.db, AccountFilter{Role: models.RoleClient})
	require.NoError(t, err)
	require.Equal(t, int64(2), page.Total)

	page, err = ListAccounts(s.ctx, s.db, AccountFilter{Search: "zara"})
	require.NoError(t, err)
	accounts := page.Items.([]models.Account)
	require.Len(t, accounts, 1)
	require.Equal(t, "zara@example.com", accounts[0].Email)

	page, err = ListAccounts(s.ctx, s.db, AccountFilter{Page: PageRequest{Page: 2, PageSize: 2}})
	require.NoError(t, err)
	require.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items.([]models.Account), 1)
}
