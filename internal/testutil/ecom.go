package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/your-org/bookstore-storefront/internal/pkg/auth"
)

// FakeBook is a catalog entry of the fake backend
type FakeBook struct {
	ID     string          `json:"id"`
	Title  string          `json:"title"`
	Author string          `json:"author"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"-"`
}

type fakeLine struct {
	ID       string
	BookID   string
	Quantity int
}

// AddCall records one POST /ecom/cart
type AddCall struct {
	Subject  string
	BookID   string
	Quantity int
}

// Ecom is a fake of the ecom and inventory services
type Ecom struct {
	Server *httptest.Server

	mu       sync.Mutex
	books    []FakeBook
	grants   map[string]string
	carts    map[string][]*fakeLine
	nextLine int
	nextOrd  int
	addCalls []AddCall
	failAdd  map[string]int
	checkout int
	requests int
}

// NewEcom starts a fake backend seeded with books. Close it with t.Cleanup.
func NewEcom(books ...FakeBook) *Ecom {
	gin.SetMode(gin.TestMode)
	e := &Ecom{
		books:   books,
		grants:  make(map[string]string),
		carts:   make(map[string][]*fakeLine),
		failAdd: make(map[string]int),
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		e.mu.Lock()
		e.requests++
		e.mu.Unlock()
		c.Next()
	})
	r.GET("/ecom/books", e.listBooks)
	r.GET("/ecom/books/search", e.searchBooks)
	r.GET("/inven/stock/:id", e.stock)

	cart := r.Group("/ecom", e.authenticate)
	cart.GET("/cart", e.getCart)
	cart.POST("/cart", e.addToCart)
	cart.PUT("/cart/:id", e.updateLine)
	cart.DELETE("/cart/:id", e.deleteLine)
	cart.POST("/checkout", e.doCheckout)

	e.Server = httptest.NewServer(r)
	return e
}

// URL is the backend base URL
func (e *Ecom) URL() string {
	return e.Server.URL
}

// Close stops the server
func (e *Ecom) Close() {
	e.Server.Close()
}

// Grant makes token valid for subject
func (e *Ecom) Grant(token, subject string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.grants[token] = subject
}

// FailAddFor makes POST /ecom/cart for bookID answer status
func (e *Ecom) FailAddFor(bookID string, status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAdd[bookID] = status
}

// FailCheckout makes POST /ecom/checkout answer status
func (e *Ecom) FailCheckout(status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkout = status
}

// AddCalls returns every add-to-cart request seen so far
func (e *Ecom) AddCalls() []AddCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := make([]AddCall, len(e.addCalls))
	copy(calls, e.addCalls)
	sort.Slice(calls, func(i, j int) bool { return calls[i].BookID < calls[j].BookID })
	return calls
}

// Requests returns how many requests reached the server
func (e *Ecom) Requests() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests
}

// CartQuantity sums the quantities in subject's cart
func (e *Ecom) CartQuantity(subject string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, l := range e.carts[subject] {
		n += l.Quantity
	}
	return n
}

// Seed puts a line straight into subject's cart
func (e *Ecom) Seed(subject, bookID string, quantity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.upsertLocked(subject, bookID, quantity)
}

func (e *Ecom) authenticate(c *gin.Context) {
	token := auth.ExtractTokenFromHeader(c.GetHeader("Authorization"))
	e.mu.Lock()
	subject, ok := e.grants[token]
	e.mu.Unlock()
	if token == "" || !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set("subject", subject)
	c.Next()
}

func (e *Ecom) listBooks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	e.mu.Lock()
	books := append([]FakeBook(nil), e.books...)
	e.mu.Unlock()
	if c.Query("sort") == "title" {
		sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	}
	c.JSON(http.StatusOK, pageOf(books, page, size))
}

func (e *Ecom) searchBooks(c *gin.Context) {
	q := strings.ToLower(c.Query("q"))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))

	e.mu.Lock()
	var hits []FakeBook
	for _, b := range e.books {
		if strings.Contains(strings.ToLower(b.Title), q) || strings.Contains(strings.ToLower(b.Author), q) {
			hits = append(hits, b)
		}
	}
	e.mu.Unlock()
	c.JSON(http.StatusOK, pageOf(hits, page, 20))
}

func (e *Ecom) stock(c *gin.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, b := range e.books {
		if b.ID == c.Param("id") {
			c.JSON(http.StatusOK, gin.H{"bookId": b.ID, "available": b.Stock})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
}

func (e *Ecom) getCart(c *gin.Context) {
	subject := c.GetString("subject")
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]gin.H, 0, len(e.carts[subject]))
	for _, l := range e.carts[subject] {
		out = append(out, e.lineJSONLocked(l))
	}
	c.JSON(http.StatusOK, out)
}

func (e *Ecom) addToCart(c *gin.Context) {
	var req struct {
		BookID   string `json:"bookId"`
		Quantity int    `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	subject := c.GetString("subject")

	e.mu.Lock()
	defer e.mu.Unlock()
	e.addCalls = append(e.addCalls, AddCall{Subject: subject, BookID: req.BookID, Quantity: req.Quantity})
	if status, ok := e.failAdd[req.BookID]; ok {
		c.JSON(status, gin.H{"error": "add failed"})
		return
	}
	if _, ok := e.bookLocked(req.BookID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
		return
	}
	line := e.upsertLocked(subject, req.BookID, req.Quantity)
	c.JSON(http.StatusOK, e.lineJSONLocked(line))
}

func (e *Ecom) updateLine(c *gin.Context) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Quantity < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity must be at least 1"})
		return
	}
	subject := c.GetString("subject")

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range e.carts[subject] {
		if l.ID == c.Param("id") {
			l.Quantity = req.Quantity
			c.JSON(http.StatusOK, e.lineJSONLocked(l))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
}

func (e *Ecom) deleteLine(c *gin.Context) {
	subject := c.GetString("subject")

	e.mu.Lock()
	defer e.mu.Unlock()
	lines := e.carts[subject]
	for i, l := range lines {
		if l.ID == c.Param("id") {
			e.carts[subject] = append(lines[:i:i], lines[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "cart item not found"})
}

func (e *Ecom) doCheckout(c *gin.Context) {
	subject := c.GetString("subject")

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.checkout != 0 {
		c.JSON(e.checkout, gin.H{"error": "inventory reservation failed"})
		return
	}
	if len(e.carts[subject]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
		return
	}
	total := decimal.Zero
	for _, l := range e.carts[subject] {
		b, _ := e.bookLocked(l.BookID)
		total = total.Add(b.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	delete(e.carts, subject)
	e.nextOrd++
	c.JSON(http.StatusOK, gin.H{
		"id":     fmt.Sprintf("order-%d", e.nextOrd),
		"total":  total,
		"status": "CONFIRMED",
	})
}

func (e *Ecom) bookLocked(id string) (FakeBook, bool) {
	for _, b := range e.books {
		if b.ID == id {
			return b, true
		}
	}
	return FakeBook{}, false
}

func (e *Ecom) upsertLocked(subject, bookID string, quantity int) *fakeLine {
	for _, l := range e.carts[subject] {
		if l.BookID == bookID {
			l.Quantity += quantity
			return l
		}
	}
	e.nextLine++
	line := &fakeLine{ID: fmt.Sprintf("line-%d", e.nextLine), BookID: bookID, Quantity: quantity}
	e.carts[subject] = append(e.carts[subject], line)
	return line
}

func (e *Ecom) lineJSONLocked(l *fakeLine) gin.H {
	b, _ := e.bookLocked(l.BookID)
	return gin.H{
		"id":       l.ID,
		"book":     gin.H{"id": b.ID, "title": b.Title, "price": b.Price},
		"quantity": l.Quantity,
	}
}

func pageOf(books []FakeBook, page, size int) gin.H {
	if size <= 0 {
		size = 20
	}
	start := page * size
	if start > len(books) {
		start = len(books)
	}
	end := start + size
	if end > len(books) {
		end = len(books)
	}
	content := books[start:end]
	if content == nil {
		content = []FakeBook{}
	}
	return gin.H{
		"content":       content,
		"totalElements": len(books),
		"totalPages":    (len(books) + size - 1) / size,
		"number":        page,
		"size":          size,
	}
}
