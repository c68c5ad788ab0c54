package content

import (
	"strconv"
	"sync"
)

const pexels = "https://images.pexels.com/photos/"

var (
	defaultOnce sync.Once
	defaultTree Tree
)

// DefaultTree returns a fresh copy of the canonical default document.
func DefaultTree() Tree {
	defaultOnce.Do(func() {
		tree, err := ToTree(Default())
		if err != nil {
			panic("content: canonical default is not encodable: " + err.Error())
		}
		defaultTree = tree
	})
	return Clone(defaultTree)
}

// Default returns the canonical site document. Every field a client may
// read is populated here; later versions add fields here first.
func Default() SiteContent {
	return SiteContent{
		Hero: Hero{
			Name:            "Yasin Ali Abir",
			Title:           "Hi there, I'm Yasin Ali Abir",
			Description:     "I am proud to have gained experience working with over 200 brands and creators at both national and international levels. With more than 70,000 successful projects under my belt, I have established myself as a trusted professional in the creative industry. My work has gained widespread practice worldwide through my 55,000+ followers. Additionally, I am a Level 2 Seller on Fiverr, trusted for delivering high-quality designs with professionalism and reliability.",
			Image:           "/FULL BX.png",
			FlipTitle:       "Professional Designer",
			FlipSubtitle:    "Creative Excellence",
			FlipDescription: "Bringing your vision to life with stunning designs",
			FlipStats: &FlipStats{
				Experience: "7+ Years Experience",
				Brands:     "200+ Brands",
				Projects:   "10k+ Projects",
			},
		},
		Stats: []Stat{
			{ID: "1", Value: "10k+", Label: "Project Completed"},
			{ID: "2", Value: "200+", Label: "Satisfied Clients"},
			{ID: "3", Value: "50k+", Label: "Social Media Audiences"},
		},
		Courses: []Course{
			{
				ID:              "1",
				Title:           "Graphic Design",
				Subtitle:        "Complete Course",
				Image:           pexels + "196644/pexels-photo-196644.jpeg?auto=compress&cs=tinysrgb&w=600",
				OriginalPrice:   "৳5000 TK",
				DiscountedPrice: "Big Discount",
				EnrollURL:       "#",
				ButtonText:      "ENROLL NOW",
				ButtonColor:     "#f59e0b",
			},
		},
		Brands: []Brand{
			{ID: "1", Name: "Toffee", Logo: pexels + "1092644/pexels-photo-1092644.jpeg?auto=compress&cs=tinysrgb&w=100"},
			{ID: "2", Name: "Brand C", Logo: pexels + "1092644/pexels-photo-1092644.jpeg?auto=compress&cs=tinysrgb&w=100"},
			{ID: "3", Name: "Amazon", Logo: pexels + "1092644/pexels-photo-1092644.jpeg?auto=compress&cs=tinysrgb&w=100"},
		},
		Features: []Feature{
			{ID: "1", Icon: "rocket", Title: "Fast Delivery", Description: "Get high-quality designs delivered quickly without compromising on creativity or detail."},
			{ID: "2", Icon: "refresh-cw", Title: "Unlimited Revisions", Description: "Your satisfaction is my priority- I offer unlimited revisions to ensure the design is perfect for you."},
			{ID: "3", Icon: "target", Title: "100% Reliability", Description: "With 7+ years of experience, I guarantee professional, eye-catching designs tailored to your needs, every time."},
			{ID: "4", Icon: "globe", Title: "7+ Years Experience", Description: "Trusted by 200+ brands worldwide with 10k+ successful projects."},
			{ID: "5", Icon: "lightbulb", Title: "Creative Designs", Description: "Stand out with fresh, original concepts crafted just for you."},
			{ID: "6", Icon: "dollar-sign", Title: "Affordable Pricing", Description: "Get top-tier designs without breaking the bank."},
		},
		Portfolio:  defaultPortfolio(),
		Categories: []Category{
			{ID: "1", Name: "YouTube Contents", Slug: "youtube"},
			{ID: "2", Name: "Logo Designs", Slug: "logos"},
			{ID: "3", Name: "Social Media Posts", Slug: "social-media"},
		},
		SliderSettings:   SliderSettings{Speed: 4000, AutoPlay: true, PauseOnHover: true},
		ShowcaseSettings: ShowcaseSettings{IsVisible: true},
		WhatsAppSettings: WhatsAppSettings{
			PhoneNumber: "+8801234567890",
			Message:     "Hello! I would like to discuss a project with you.",
			IsVisible:   true,
		},
		ContactInfo: ContactInfo{
			Email:   "yasinaliabir@gmail.com",
			Phone:   "+880 123 456 789",
			Address: "House 123, Road 456",
			City:    "Dhaka",
			Country: "Bangladesh",
		},
		FooterSettings: FooterSettings{
			CopyrightText: "Copyright © 2025 Yasin Ali Abir",
			SocialLinks: []SocialLink{
				{ID: "1", Name: "Facebook", URL: "https://facebook.com/yasinaliabir", Icon: "facebook", IsVisible: true},
				{ID: "2", Name: "Instagram", URL: "https://instagram.com/yasinaliabir", Icon: "instagram", IsVisible: true},
				{ID: "3", Name: "Behance", URL: "https://behance.net/yasinaliabir", Icon: "behance", IsVisible: true},
				{ID: "4", Name: "YouTube", URL: "https://youtube.com/@yasinaliabir", Icon: "youtube", IsVisible: true},
			},
		},
		ThemeColors: ThemeColors{
			Primary:       "#2563eb",
			Secondary:     "#7c3aed",
			Accent:        "#f59e0b",
			Background:    "#ffffff",
			Surface:       "#f8fafc",
			Text:          "#1f2937",
			TextSecondary: "#6b7280",
			Success:       "#10b981",
			Warning:       "#f59e0b",
			Error:         "#ef4444",
		},
		HeaderSettings: HeaderSettings{
			UseText: true,
			Text:    "Yasin Ali Abir",
			Logo:    "",
			NavigationLinks: []NavigationLink{
				{ID: "1", Label: "About Me", Type: "section", Target: "hero", IsVisible: true},
				{ID: "2", Label: "My Work", Type: "section", Target: "portfolio", IsVisible: true},
				{ID: "3", Label: "Contact Me", Type: "section", Target: "contact", IsVisible: true},
			},
			ShowAdminButton: true,
		},
		FontSettings: FontSettings{
			Headings:    "Inter",
			Body:        "Inter",
			Display:     "Inter",
			CustomFonts: []string{},
		},
	}
}

func defaultPortfolio() []PortfolioItem {
	type seed struct {
		title    string
		photo    string
		category string
	}
	seeds := []seed{
		{"YouTube Thumbnail 1", "1841841", "youtube"},
		{"YouTube Thumbnail 2", "1841844", "youtube"},
		{"YouTube Thumbnail 3", "1841845", "youtube"},
		{"YouTube Thumbnail 4", "1841846", "youtube"},
		{"YouTube Thumbnail 5", "1841847", "youtube"},
		{"YouTube Thumbnail 6", "1841848", "youtube"},
		{"YouTube Thumbnail 7", "1841849", "youtube"},
		{"YouTube Thumbnail 8", "1841850", "youtube"},
		{"Logo Design 1", "196644", "logos"},
		{"Logo Design 2", "196649", "logos"},
		{"Logo Design 3", "196650", "logos"},
		{"Logo Design 4", "196651", "logos"},
		{"Social Media Post 1", "196652", "social-media"},
		{"Social Media Post 2", "196653", "social-media"},
		{"Social Media Post 3", "196654", "social-media"},
		{"Social Media Post 4", "196655", "social-media"},
	}
	items := make([]PortfolioItem, 0, len(seeds))
	for i, s := range seeds {
		items = append(items, PortfolioItem{
			ID:       strconv.Itoa(i + 1),
			Title:    s.title,
			Image:    pexels + s.photo + "/pexels-photo-" + s.photo + ".jpeg?auto=compress&cs=tinysrgb&w=600",
			Category: s.category,
		})
	}
	return items
}
