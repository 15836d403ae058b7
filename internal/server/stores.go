package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	storedomain "github.com/smallbiznis/storesplit/internal/store/domain"
)

func (s *Server) GetStoreCashBalance(c *gin.Context) {
	storeID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	balance, err := s.allocationSvc.StoreCashBalance(c.Request.Context(), actorID, storeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"store_id": storeID.String(),
		"balance":  balance.StringFixed(2),
	}})
}

// requireStoreAccess passes when the actor manages any of the given stores.
func (s *Server) requireStoreAccess(c *gin.Context, storeID snowflake.ID, others ...snowflake.ID) error {
	actorID, err := actorFromContext(c)
	if err != nil {
		return err
	}
	for _, id := range append([]snowflake.ID{storeID}, others...) {
		allowed, err := s.accessSvc.CanAccess(c.Request.Context(), actorID, id)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
	}
	return ErrForbidden
}

type createStoreBody struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type createBankAccountBody struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
}

func (s *Server) CreateStore(c *gin.Context) {
	var body createStoreBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	store, err := s.storeSvc.CreateStore(c.Request.Context(), actorID, storedomain.CreateStoreRequest{
		Name: body.Name,
		Code: body.Code,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": storeResponse(store)})
}

func (s *Server) GetStore(c *gin.Context) {
	storeID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	store, err := s.storeSvc.GetStore(c.Request.Context(), actorID, storeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": storeResponse(store)})
}

func (s *Server) CreateBankAccount(c *gin.Context) {
	storeID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var body createBankAccountBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	account, err := s.storeSvc.CreateBankAccount(c.Request.Context(), actorID, storeID, storedomain.CreateBankAccountRequest{
		Name:          body.Name,
		AccountNumber: body.AccountNumber,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": bankAccountResponse(account)})
}

func (s *Server) ListBankAccounts(c *gin.Context) {
	storeID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	accounts, err := s.storeSvc.ListBankAccounts(c.Request.Context(), actorID, storeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data := make([]gin.H, 0, len(accounts))
	for _, account := range accounts {
		data = append(data, bankAccountResponse(account))
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

func storeResponse(store storedomain.Store) gin.H {
	return gin.H{
		"id":         store.ID.String(),
		"code":       store.Code,
		"name":       store.Name,
		"created_at": store.CreatedAt,
	}
}

func bankAccountResponse(account storedomain.BankAccount) gin.H {
	return gin.H{
		"id":             account.ID.String(),
		"store_id":       account.StoreID.String(),
		"name":           account.Name,
		"account_number": account.AccountNumber,
		"created_at":     account.CreatedAt,
	}
}
