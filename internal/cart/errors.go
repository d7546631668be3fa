package cart

import "errors"

// Each message doubles as the user-facing notification text.
var (
	ErrProductAddition = errors.New("Error adding product")
	ErrOutOfStock      = errors.New("Requested quantity is out of stock")
	ErrProductRemoval  = errors.New("Error removing product")
	ErrQuantityUpdate  = errors.New("Error updating product quantity")
	ErrCartClear       = errors.New("Error clearing cart")

	ErrItemNotFound    = errors.New("item not found in cart")
	ErrProductMismatch = errors.New("inventory returned a different product")
	ErrPersist         = errors.New("write cart snapshot failed")
)
