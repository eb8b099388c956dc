package popup

import (
	"fmt"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

// Content is the promotional copy and charge amount shown in the popup.
type Content struct {
	Title           string `json:"title" validate:"required"`
	Description     string `json:"description" validate:"required"`
	PriceDisplay    string `json:"price" validate:"required"`
	DiscountDisplay string `json:"discount,omitempty"`
	ImageURL        string `json:"imageSrc,omitempty" validate:"omitempty,url"`
	AmountCents     int64  `json:"amount" validate:"gt=0"`
}

// ContentPatch carries a partial content update. Nil fields keep their current value.
type ContentPatch struct {
	Title           *string
	Description     *string
	PriceDisplay    *string
	DiscountDisplay *string
	ImageURL        *string
	AmountCents     *int64
}

// DefaultContent returns the stock demo offer.
func DefaultContent() Content {
	return Content{
		Title:           "Let us do all the work for you!",
		Description:     "I could register your @username across 16 platforms and set up your profiles. I'll reach out instantly after payment to discuss everything.",
		PriceDisplay:    "$100",
		DiscountDisplay: "$160",
		ImageURL:        "https://images.unsplash.com/photo-1551434678-e076c223a692?auto=format&fit=crop&w=800&q=80",
		AmountCents:     10000,
	}
}

// Merge overlays the supplied patch fields. A non-positive amount is ignored
// because the amount is forwarded verbatim to the payment request.
func (c Content) Merge(p ContentPatch) Content {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.PriceDisplay != nil {
		c.PriceDisplay = *p.PriceDisplay
	}
	if p.DiscountDisplay != nil {
		c.DiscountDisplay = *p.DiscountDisplay
	}
	if p.ImageURL != nil {
		c.ImageURL = *p.ImageURL
	}
	if p.AmountCents != nil && *p.AmountCents > 0 {
		c.AmountCents = *p.AmountCents
	}
	return c
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks required copy, the image URL and the amount.
func (c Content) Validate() error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(c); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("popup content invalid: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("popup content invalid: %w", err)
	}
	return nil
}
