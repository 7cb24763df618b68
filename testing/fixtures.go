package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/amirphl/tablecast/models"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestBranch creates a restaurant branch
func (tf *TestFixtures) CreateTestBranch(name string) (*models.Branch, error) {
	branch := &models.Branch{Name: name}
	if err := tf.DB.DB.Create(branch).Error; err != nil {
		return nil, fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	return branch, nil
}

// CreateTestMenuItem creates a menu item
func (tf *TestFixtures) CreateTestMenuItem(name string, price float64) (*models.MenuItem, error) {
	item := &models.MenuItem{Name: name, Price: price}
	if err := tf.DB.DB.Create(item).Error; err != nil {
		return nil, fmt.Errorf("failed to create menu item %s: %w", name, err)
	}
	return item, nil
}

// CreateTestCustomer creates a customer with a random phone number. chatID may be nil.
func (tf *TestFixtures) CreateTestCustomer(name string, chatID *string) (*models.Customer, error) {
	randomDigits := fmt.Sprintf("%08d", rand.Intn(90000000)+10000000)

	customer := &models.Customer{
		DisplayName:    name,
		PhoneNumber:    "+2519" + randomDigits,
		TelegramChatID: chatID,
	}
	if err := tf.DB.DB.Create(customer).Error; err != nil {
		return nil, fmt.Errorf("failed to create customer %s: %w", name, err)
	}
	return customer, nil
}

// CreateTestOrder creates an order placed at createdAt containing one of each menu item
func (tf *TestFixtures) CreateTestOrder(customerID, branchID uint, total float64, createdAt time.Time, menuItemIDs ...uint) (*models.Order, error) {
	order := &models.Order{
		CustomerID:  customerID,
		BranchID:    branchID,
		TotalAmount: total,
		CreatedAt:   createdAt,
	}
	for _, id := range menuItemIDs {
		order.Items = append(order.Items, models.OrderItem{MenuItemID: id, Quantity: 1})
	}
	if err := tf.DB.DB.Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create order for customer %d: %w", customerID, err)
	}
	return order, nil
}
