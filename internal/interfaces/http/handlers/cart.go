// internal/interfaces/http/handlers/cart.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/your-org/bookstore-storefront/internal/interfaces/http/middleware"
)

// AddItemRequest represents an add-to-cart click
type AddItemRequest struct {
	BookID string          `json:"bookId" binding:"required"`
	Title  string          `json:"title"`
	Price  decimal.Decimal `json:"price"`
}

// UpdateItemRequest represents a quantity control click
type UpdateItemRequest struct {
	Delta int `json:"delta" binding:"required"`
}

// CartHandler handles cart endpoints
type CartHandler struct{}

// NewCartHandler creates a new cart handler
func NewCartHandler() *CartHandler {
	return &CartHandler{}
}

// GetCart handles GET /api/cart
func (h *CartHandler) GetCart(c *gin.Context) {
	sf := middleware.Storefront(c)

	view, err := sf.CartView(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart retrieved successfully",
		"data":    view,
	})
}

// AddItem handles POST /api/cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	sf := middleware.Storefront(c)

	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}
	if req.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Price cannot be negative",
		})
		return
	}

	if err := sf.AddToCart(c.Request.Context(), req.BookID, req.Title, req.Price); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Item added to cart successfully",
		"data":    gin.H{"count": sf.Badge.Value()},
	})
}

// UpdateItem handles PATCH /api/cart/items/:id
func (h *CartHandler) UpdateItem(c *gin.Context) {
	sf := middleware.Storefront(c)

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := sf.AdjustQuantity(c.Request.Context(), c.Param("id"), req.Delta); err != nil {
		respondError(c, err)
		return
	}

	view, err := sf.CartView(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Cart item updated successfully",
		"data":    view,
	})
}

// Badge handles GET /api/cart/badge
func (h *CartHandler) Badge(c *gin.Context) {
	sf := middleware.Storefront(c)

	c.JSON(http.StatusOK, gin.H{
		"message": "Badge retrieved successfully",
		"data":    gin.H{"count": sf.Badge.Value()},
	})
}

// Checkout handles POST /api/checkout
func (h *CartHandler) Checkout(c *gin.Context) {
	sf := middleware.Storefront(c)

	result, err := sf.Checkout(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order placed successfully",
		"data":    result,
	})
}
