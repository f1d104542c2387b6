package simhash

import "testing"

// Two renderings of one interstitial template. The copy rotates between
// requests but the markup skeleton is identical.
const interstitialEN = `<!DOCTYPE html>
<html><head><title>Just a moment...</title></head>
<body><div class="wrapper"><div class="content">
<p>Checking your browser before accessing the site.</p>
<noscript><p>Please enable JavaScript.</p></noscript>
</div></div></body></html>`

const interstitialRO = `<!DOCTYPE html>
<html><head><title>Se încarcă...</title></head>
<body><div class="wrapper"><div class="content">
<p>Un moment, vă rugăm.</p>
<noscript><p>Activați JavaScript.</p></noscript>
</div></div></body></html>`

const productPage = `<!DOCTYPE html>
<html><head><title>Samsung Galaxy S24 | Darwin</title></head>
<body>
<nav><ul><li><a href="/">Acasă</a></li><li><a href="/telefoane">Telefoane</a></li></ul></nav>
<main>
<h1>Samsung Galaxy S24</h1>
<span class="price">19 999 lei</span>
<img src="/img/1.jpg"><img src="/img/2.jpg">
<table><tr><td>Memorie</td><td>256 GB</td></tr></table>
<section><h2>Descriere</h2><p>Telefon flagship.</p></section>
</main>
<footer><p>Darwin.md</p></footer>
</body></html>`

func TestFromDOM_RotatedCopyHashesToSameTemplate(t *testing.T) {
	en := FromDOM(interstitialEN)
	ro := FromDOM(interstitialRO)

	if en == 0 || ro == 0 {
		t.Fatal("interstitial pages should produce non-zero fingerprints")
	}
	if d := Distance(en, ro); d != 0 {
		t.Errorf("same template with rotated copy: distance = %d, want 0", d)
	}
}

func TestFromDOM_ProductPageIsFarFromInterstitial(t *testing.T) {
	interstitial := FromDOM(interstitialEN)
	product := FromDOM(productPage)

	if d := Distance(interstitial, product); d <= 6 {
		t.Errorf("product vs interstitial distance = %d, want well past the match threshold", d)
	}
}

func TestFromDOM_NestingShapesTheFingerprint(t *testing.T) {
	deep := FromDOM(`<div><div><div><p>x</p></div></div></div>`)
	flat := FromDOM(`<div><p>x</p></div>`)
	if deep == flat {
		t.Error("different nesting depths should produce different fingerprints")
	}
}

func TestFromDOM_Deterministic(t *testing.T) {
	if FromDOM(interstitialEN) != FromDOM(interstitialEN) {
		t.Error("fingerprint must be deterministic")
	}
}

func TestFromDOM_NoElements(t *testing.T) {
	if fp := FromDOM(""); fp != 0 {
		t.Errorf("empty document: fingerprint = %064b, want 0", fp)
	}
	if fp := FromDOM("plain text without any markup"); fp != 0 {
		t.Errorf("tagless document: fingerprint = %064b, want 0", fp)
	}
}

func TestFromDOM_FewerTagsThanShingleWidth(t *testing.T) {
	if fp := FromDOM("<br/>"); fp == 0 {
		t.Error("a tiny document still needs a non-zero fingerprint")
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
		{"all bits", 0, ^uint64(0), 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Distance(tt.a, tt.b); got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilar_ThresholdIsInclusive(t *testing.T) {
	var a, b uint64 = 0, 0x7 // distance 3
	if !Similar(a, b, 3) {
		t.Error("distance equal to the threshold should match")
	}
	if Similar(a, b, 2) {
		t.Error("distance above the threshold should not match")
	}
}
