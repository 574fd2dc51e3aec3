package model

// Cart collects request lines before submission. Adding a donation that is
// already in the cart merges the quantities into the existing line.
type Cart struct {
	lines []LineInput
}

// NewCart builds a cart from submitted lines, merging duplicates.
func NewCart(lines []LineInput) *Cart {
	c := &Cart{}
	for _, l := range lines {
		c.Add(l.DonationID, l.RequestedQuantity)
	}
	return c
}

func (c *Cart) index(donationID int64) int {
	for i, l := range c.lines {
		if l.DonationID == donationID {
			return i
		}
	}
	return -1
}

// Add puts quantity units of a donation into the cart.
func (c *Cart) Add(donationID int64, quantity int) {
	if i := c.index(donationID); i >= 0 {
		c.lines[i].RequestedQuantity += quantity
		return
	}
	c.lines = append(c.lines, LineInput{DonationID: donationID, RequestedQuantity: quantity})
}

// SetQuantity replaces the quantity of a line. Quantities below one are
// clamped to one; use Remove to drop a line.
func (c *Cart) SetQuantity(donationID int64, quantity int) {
	i := c.index(donationID)
	if i < 0 {
		return
	}
	c.lines[i].RequestedQuantity = max(1, quantity)
}

// Remove drops the line for a donation.
func (c *Cart) Remove(donationID int64) {
	if i := c.index(donationID); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.lines = nil
}

// Len returns the number of distinct lines.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Total returns the sum of requested quantities.
func (c *Cart) Total() int {
	total := 0
	for _, l := range c.lines {
		total += l.RequestedQuantity
	}
	return total
}

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []LineInput {
	out := make([]LineInput, len(c.lines))
	copy(out, c.lines)
	return out
}
