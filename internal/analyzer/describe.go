package analyzer

import (
	"fmt"
	"strings"
)

// Describe renders the fingerprint as prose lines for oracle prompts.
func (f Fingerprint) Describe() string {
	var b strings.Builder

	if f.Navigation.H1 != "" {
		fmt.Fprintf(&b, "H1: %s\n", f.Navigation.H1)
	}
	if f.Navigation.Breadcrumbs != "" {
		fmt.Fprintf(&b, "Breadcrumbs: %s\n", f.Navigation.Breadcrumbs)
	}
	if len(f.Navigation.NavLabels) > 0 {
		fmt.Fprintf(&b, "Navigation: %s\n", strings.Join(f.Navigation.NavLabels, ", "))
	}
	if len(f.Navigation.Headings) > 0 {
		fmt.Fprintf(&b, "Headings: %s\n", strings.Join(f.Navigation.Headings, "; "))
	}

	fmt.Fprintf(&b, "Price shown: %t, buy button: %t, gallery images: %d, specs block: %t\n",
		f.Commerce.HasPrice, f.Commerce.HasBuyButton, f.Commerce.GalleryImages, f.Commerce.HasSpecsBlock)
	fmt.Fprintf(&b, "Product cards: %d, filters: %t, pagination: %t\n",
		f.Catalog.ProductCount, f.Catalog.HasFilters, f.Catalog.HasPagination)
	fmt.Fprintf(&b, "Contact form: %t, map: %t, phone: %q, address: %t\n",
		f.Contact.HasForm, f.Contact.HasMap, f.Contact.Phone, f.Contact.HasAddress)

	if f.Navigation.ContentText != "" {
		fmt.Fprintf(&b, "Content excerpt: %s\n", f.Navigation.ContentText)
	}
	return b.String()
}

// FeatureTags summarizes the fingerprint as short tags for template
// classification prompts.
func (f Fingerprint) FeatureTags() []string {
	var tags []string
	add := func(cond bool, tag string) {
		if cond {
			tags = append(tags, tag)
		}
	}
	add(f.Commerce.HasPrice, "цена")
	add(f.Commerce.HasBuyButton, "кнопка_купить")
	add(f.Commerce.ProductGallery, "галерея_товара")
	add(f.Commerce.HasSpecsBlock, "характеристики")
	add(f.Catalog.ProductCount > 3, fmt.Sprintf("каталог_%d_товаров", f.Catalog.ProductCount))
	add(f.Catalog.HasFilters, "фильтры")
	add(f.Catalog.HasPagination, "пагинация")
	add(f.Contact.HasForm, "форма_обратной_связи")
	add(f.Contact.HasMap, "карта")
	add(f.Contact.Phone != "", "телефон")
	add(f.Contact.HasAddress, "адрес")
	add(f.Sections.HasTeam, "команда")
	add(f.Sections.HasFAQ, "FAQ_аккордеон")
	add(f.Sections.HasPricingTable, "таблица_цен")
	add(f.Sections.HasPortfolio, "портфолио")
	add(f.Sections.HasLongArticle, "длинная_статья")
	add(f.Sections.HasTestimonials, "отзывы")
	return tags
}
