package mailer

const orderPlacedHTML = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #28a745;">Order Confirmed!</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>Thank you for your order. Your order has been confirmed and will be processed shortly.</p>
  <div style="background-color: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3>Order Details</h3>
    <p><strong>Order ID:</strong> {{.OrderNumber}}</p>
    <p><strong>Order Date:</strong> {{date .PlacedAt}}</p>
    <p><strong>Payment Method:</strong> {{upper .PaymentMethod}}</p>
    <p><strong>Estimated Delivery:</strong> {{date .EstimatedDelivery}}</p>
  </div>
  <table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
    <thead>
      <tr style="background-color: #f8f9fa;">
        <th style="padding: 12px; text-align: left;">Item</th>
        <th style="padding: 12px; text-align: center;">Qty</th>
        <th style="padding: 12px; text-align: right;">Price</th>
        <th style="padding: 12px; text-align: right;">Total</th>
      </tr>
    </thead>
    <tbody>
      {{range .Items}}<tr>
        <td style="padding: 10px; border-bottom: 1px solid #eee;">{{.Name}}</td>
        <td style="padding: 10px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
        <td style="padding: 10px; border-bottom: 1px solid #eee; text-align: right;">{{money .UnitPrice}}</td>
        <td style="padding: 10px; border-bottom: 1px solid #eee; text-align: right;">{{money .LineTotal}}</td>
      </tr>{{end}}
    </tbody>
  </table>
  <div style="text-align: right; margin: 20px 0;">
    <p><strong>Subtotal:</strong> {{money .Summary.Subtotal}}</p>
    <p><strong>Shipping:</strong> {{money .Summary.ShippingCost}}</p>
    <p><strong>Tax:</strong> {{money .Summary.Tax}}</p>
    {{if .Summary.Discount.IsPositive}}<p><strong>Discount:</strong> -{{money .Summary.Discount}}</p>{{end}}
    <h3 style="color: #28a745;"><strong>Total: {{money .Summary.TotalAmount}}</strong></h3>
  </div>
  <div style="background-color: #e9ecef; padding: 15px; border-radius: 6px; margin: 20px 0;">
    <h4>Shipping Address</h4>
    {{with .ShippingAddress}}<p>{{.FullName}}<br>
    {{.AddressLine1}}<br>
    {{if .AddressLine2}}{{.AddressLine2}}<br>{{end}}
    {{.City}}, {{.State}} - {{.Pincode}}<br>
    Phone: {{.Phone}}</p>{{end}}
  </div>
  <p style="color: #666; font-size: 14px;">You can track your order status in your account dashboard.</p>
</div>`

const orderPlacedText = `Order Confirmed! Order ID: {{.OrderNumber}}. Total: {{money .Summary.TotalAmount}}. Estimated delivery: {{date .EstimatedDelivery}}`

const statusChangedHTML = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #007bff;">Order Status Update</h2>
  <p>Hi {{.CustomerName}},</p>
  <div style="background-color: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3>Order {{.OrderNumber}}</h3>
    <p><strong>Status:</strong> <span style="color: #28a745; text-transform: uppercase; font-weight: bold;">{{.Status}}</span></p>
    <p>{{statusMessage .Status}}</p>
    {{if .TrackingNumber}}<p><strong>Tracking Number:</strong> {{.TrackingNumber}}</p>{{end}}
    {{if .Reason}}<p><strong>Reason:</strong> {{.Reason}}</p>{{end}}
  </div>
  {{if eq (print .Status) "delivered"}}<div style="text-align: center; margin: 30px 0;">
    <p>We hope you love your purchase! Please rate your experience.</p>
  </div>{{end}}
  <p style="color: #666; font-size: 14px;">Thank you for shopping with us!</p>
</div>`

const statusChangedText = `Order {{.OrderNumber}} status updated to: {{.Status}}. {{statusMessage .Status}}`

const backInStockHTML = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #28a745;">Good news! It's back in stock</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>The product you asked about is available again:</p>
  <div style="background-color: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3>{{.ProductName}}</h3>
    <p>{{.Description}}</p>
    <p><strong>Price:</strong> {{money .Price}}</p>
    <p><strong>Available:</strong> {{.Stock}} units</p>
  </div>
  <p style="color: #666; font-size: 14px;">Stock is limited, so order soon.</p>
</div>`

const backInStockText = `{{.ProductName}} is back in stock at {{money .Price}}. {{.Stock}} units available.`

const contactReceivedHTML = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>New Contact Form Submission</h2>
  <p><strong>Name:</strong> {{.Name}}</p>
  <p><strong>Email:</strong> {{.Email}}</p>
  {{if .Phone}}<p><strong>Phone:</strong> {{.Phone}}</p>{{end}}
  <p><strong>Subject:</strong> {{.Subject}}</p>
  <div style="background-color: #f8f9fa; padding: 15px; border-radius: 6px;">
    <p>{{.Message}}</p>
  </div>
</div>`

const contactReceivedText = `New contact form submission from {{.Name}} ({{.Email}})

Subject: {{.Subject}}

Message: {{.Message}}`
