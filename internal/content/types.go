package content

type Stat struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Label string `json:"label"`
}

type Course struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Subtitle        string `json:"subtitle"`
	Image           string `json:"image"`
	OriginalPrice   string `json:"originalPrice"`
	DiscountedPrice string `json:"discountedPrice"`
	EnrollURL       string `json:"enrollUrl"`
	ButtonText      string `json:"buttonText,omitempty"`
	ButtonColor     string `json:"buttonColor,omitempty"`
}

type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Logo string `json:"logo"`
}

type Feature struct {
	ID          string `json:"id"`
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type PortfolioItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Image    string `json:"image"`
	Category string `json:"category"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type FlipStats struct {
	Experience string `json:"experience"`
	Brands     string `json:"brands"`
	Projects   string `json:"projects"`
}

type Hero struct {
	Name            string     `json:"name"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Image           string     `json:"image"`
	FlipTitle       string     `json:"flipTitle,omitempty"`
	FlipSubtitle    string     `json:"flipSubtitle,omitempty"`
	FlipDescription string     `json:"flipDescription,omitempty"`
	FlipStats       *FlipStats `json:"flipStats,omitempty"`
}

type SliderSettings struct {
	Speed        int  `json:"speed"`
	AutoPlay     bool `json:"autoPlay"`
	PauseOnHover bool `json:"pauseOnHover"`
}

type ShowcaseSettings struct {
	IsVisible bool `json:"isVisible"`
}

type WhatsAppSettings struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
	IsVisible   bool   `json:"isVisible"`
}

type ContactInfo struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
}

type SocialLink struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Icon      string `json:"icon"`
	IsVisible bool   `json:"isVisible"`
}

type FooterSettings struct {
	CopyrightText string       `json:"copyrightText"`
	SocialLinks   []SocialLink `json:"socialLinks"`
}

type ThemeColors struct {
	Primary       string `json:"primary"`
	Secondary     string `json:"secondary"`
	Accent        string `json:"accent"`
	Background    string `json:"background"`
	Surface       string `json:"surface"`
	Text          string `json:"text"`
	TextSecondary string `json:"textSecondary"`
	Success       string `json:"success"`
	Warning       string `json:"warning"`
	Error         string `json:"error"`
}

// NavigationLink targets a section id, an absolute URL or a page name
// depending on Type.
type NavigationLink struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	Type         string `json:"type"`
	Target       string `json:"target"`
	IsVisible    bool   `json:"isVisible"`
	OpenInNewTab bool   `json:"openInNewTab,omitempty"`
}

type HeaderSettings struct {
	UseText         bool             `json:"useText"`
	Text            string           `json:"text"`
	Logo            string           `json:"logo"`
	NavigationLinks []NavigationLink `json:"navigationLinks"`
	ShowAdminButton bool             `json:"showAdminButton"`
}

type FontSettings struct {
	Headings    string   `json:"headings"`
	Body        string   `json:"body"`
	Display     string   `json:"display"`
	CustomFonts []string `json:"customFonts"`
}

// SiteContent is the typed view of the whole site document.
type SiteContent struct {
	Hero             Hero             `json:"hero"`
	Stats            []Stat           `json:"stats"`
	Courses          []Course         `json:"courses"`
	Brands           []Brand          `json:"brands"`
	Features         []Feature        `json:"features"`
	Portfolio        []PortfolioItem  `json:"portfolio"`
	Categories       []Category       `json:"categories"`
	SliderSettings   SliderSettings   `json:"sliderSettings"`
	ShowcaseSettings ShowcaseSettings `json:"showcaseSettings"`
	WhatsAppSettings WhatsAppSettings `json:"whatsappSettings"`
	ContactInfo      ContactInfo      `json:"contactInfo"`
	FooterSettings   FooterSettings   `json:"footerSettings"`
	ThemeColors      ThemeColors      `json:"themeColors"`
	HeaderSettings   HeaderSettings   `json:"headerSettings"`
	FontSettings     FontSettings     `json:"fontSettings"`
}
